package xmlstream

import (
    "bytes"
    "strings"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/rudilee/OrangeServer/pkg/errors"
)

func TestWriterHandshakeDoubleQuotes(t *testing.T) {
    var buf bytes.Buffer
    w := NewWriter(&buf, false)

    require.NoError(t, w.Open())
    require.NoError(t, w.WriteElement(
        NewElement("welcome").
            Attr("name", "CTI Server v1.0").
            Child(NewElement("note").SetText("welcome"))))

    out := buf.String()
    assert.True(t, strings.HasPrefix(out, `<?xml version="1.0" encoding="UTF-8"?>`))
    assert.Contains(t, out, "<stream>\n")
    assert.Contains(t, out, `<welcome name="CTI Server v1.0"><note>welcome</note></welcome>`+"\n")
}

func TestWriterSingleQuoteOption(t *testing.T) {
    var buf bytes.Buffer
    w := NewWriter(&buf, true)

    require.NoError(t, w.Open())
    require.NoError(t, w.WriteElement(NewElement("authentication").Attr("id", "prompt")))

    out := buf.String()
    assert.Contains(t, out, "<?xml version='1.0' encoding='UTF-8'?>")
    assert.Contains(t, out, "<authentication id='prompt'/>\n")
}

func TestWriterEscapesMarkup(t *testing.T) {
    var buf bytes.Buffer
    w := NewWriter(&buf, false)

    require.NoError(t, w.WriteElement(
        NewElement("message").
            Attr("text", `a "quoted" <value>`).
            SetText("1 < 2 & 3 > 2")))

    out := buf.String()
    assert.Contains(t, out, `text="a &quot;quoted&quot; &lt;value&gt;"`)
    assert.Contains(t, out, "1 &lt; 2 &amp; 3 &gt; 2")
}

func TestWriterEmptyElementSelfCloses(t *testing.T) {
    var buf bytes.Buffer
    w := NewWriter(&buf, false)

    require.NoError(t, w.WriteElement(NewElement("beat")))
    assert.Equal(t, "<beat/>\n", buf.String())
}

func TestReaderParsesClientMessages(t *testing.T) {
    input := `<?xml version="1.0" encoding="UTF-8"?>` + "\n" +
        "<stream>\n" +
        `<authentication type="plain">alice:s3cret</authentication>` + "\n" +
        "<beat/>\n" +
        `<action type="ready"><ready value="true" outbound="false"/></action>` + "\n" +
        "</stream>"

    r := NewReader(strings.NewReader(input))

    msg, err := r.Next()
    require.NoError(t, err)
    assert.Equal(t, "authentication", msg.Name)
    assert.Equal(t, "plain", msg.Attr("type"))
    assert.Equal(t, "alice:s3cret", msg.Text)

    msg, err = r.Next()
    require.NoError(t, err)
    assert.Equal(t, "beat", msg.Name)

    msg, err = r.Next()
    require.NoError(t, err)
    assert.Equal(t, "action", msg.Name)
    assert.Equal(t, "ready", msg.Attr("type"))
    payload := msg.FirstChild()
    require.NotNil(t, payload)
    assert.Equal(t, "ready", payload.Name)
    assert.Equal(t, "true", payload.Attr("value"))
    assert.Equal(t, "false", payload.Attr("outbound"))

    _, err = r.Next()
    assert.True(t, errors.Is(err, errors.ErrPeerDisconnect))
}

func TestReaderWithoutPrologue(t *testing.T) {
    r := NewReader(strings.NewReader("<stream><beat/></stream>"))

    msg, err := r.Next()
    require.NoError(t, err)
    assert.Equal(t, "beat", msg.Name)

    _, err = r.Next()
    assert.ErrorIs(t, err, ErrStreamClosed)
}
