package xmlstream

import (
    "bufio"
    "io"
    "strings"
)

// Writer emits the server side of the client wire: a prologue, an open
// <stream> root, then one subtree per frame. Every frame is followed by a
// bare newline the desktop uses as its flush delimiter. encoding/xml fixes
// double-quoted attributes, so rendering is done by hand to honor the
// single-quote option some legacy clients require.
type Writer struct {
    out         *bufio.Writer
    singleQuote bool
    opened      bool
}

func NewWriter(w io.Writer, singleQuote bool) *Writer {
    return &Writer{
        out:         bufio.NewWriter(w),
        singleQuote: singleQuote,
    }
}

func (w *Writer) quote() byte {
    if w.singleQuote {
        return '\''
    }
    return '"'
}

// Open writes the prologue and the root opening tag
func (w *Writer) Open() error {
    if w.opened {
        return nil
    }
    w.opened = true

    q := string(w.quote())
    if _, err := w.out.WriteString("<?xml version=" + q + "1.0" + q + " encoding=" + q + "UTF-8" + q + "?>\n<stream>\n"); err != nil {
        return err
    }
    return w.out.Flush()
}

// WriteElement renders one frame and flushes it with the trailing newline
func (w *Writer) WriteElement(element *Element) error {
    var sb strings.Builder
    element.render(&sb, w.quote())
    sb.WriteByte('\n')

    if _, err := w.out.WriteString(sb.String()); err != nil {
        return err
    }
    return w.out.Flush()
}

// WriteRaw bypasses XML rendering; used for the -ERR timeout line
func (w *Writer) WriteRaw(s string) error {
    if _, err := w.out.WriteString(s); err != nil {
        return err
    }
    return w.out.Flush()
}

// Close terminates the stream root
func (w *Writer) Close() error {
    if !w.opened {
        return nil
    }
    if _, err := w.out.WriteString("</stream>\n"); err != nil {
        return err
    }
    return w.out.Flush()
}
