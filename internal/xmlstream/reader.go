package xmlstream

import (
    "encoding/xml"
    "io"

    "github.com/rudilee/OrangeServer/pkg/errors"
)

// ErrStreamClosed reports the peer's </stream> close request
var ErrStreamClosed = errors.New(errors.ErrPeerDisconnect, "peer closed the stream")

// Message is one parsed top-level child of the peer's stream
type Message struct {
    Name     string
    Attrs    map[string]string
    Text     string
    Children []*Message
}

func (m *Message) Attr(key string) string {
    return m.Attrs[key]
}

// FirstChild returns the first child element, which is how action payloads
// arrive: <action type="X"><X .../></action>
func (m *Message) FirstChild() *Message {
    if len(m.Children) == 0 {
        return nil
    }
    return m.Children[0]
}

// Reader tokenizes the peer's continuous XML stream. The <stream> root is
// consumed transparently; Next returns one top-level subtree at a time.
type Reader struct {
    decoder  *xml.Decoder
    inStream bool
}

func NewReader(r io.Reader) *Reader {
    return &Reader{decoder: xml.NewDecoder(r)}
}

// Next blocks until a complete top-level element has been received.
// Returns ErrStreamClosed on </stream> and the underlying read error on
// socket failure.
func (r *Reader) Next() (*Message, error) {
    for {
        token, err := r.decoder.Token()
        if err != nil {
            return nil, err
        }

        switch t := token.(type) {
        case xml.StartElement:
            if !r.inStream && t.Name.Local == "stream" {
                r.inStream = true
                continue
            }
            return r.readSubtree(t)
        case xml.EndElement:
            if t.Name.Local == "stream" {
                return nil, ErrStreamClosed
            }
        default:
            // prologue, whitespace, comments
        }
    }
}

func (r *Reader) readSubtree(start xml.StartElement) (*Message, error) {
    message := &Message{
        Name:  start.Name.Local,
        Attrs: make(map[string]string, len(start.Attr)),
    }
    for _, attr := range start.Attr {
        message.Attrs[attr.Name.Local] = attr.Value
    }

    for {
        token, err := r.decoder.Token()
        if err != nil {
            return nil, err
        }

        switch t := token.(type) {
        case xml.StartElement:
            child, err := r.readSubtree(t)
            if err != nil {
                return nil, err
            }
            message.Children = append(message.Children, child)
        case xml.CharData:
            message.Text += string(t)
        case xml.EndElement:
            return message, nil
        }
    }
}
