package protocol

// CopyEvent is a pending copy. PreventDefault suppresses the native copy so
// the handler can Commit the canonical text instead.
type CopyEvent interface {
	Text() string
	PreventDefault()
	Commit(content string)
}

// PasteEvent is a pending paste. Payload is the side-channel metadata that
// travelled with the clipboard, or nil.
type PasteEvent interface {
	Text() string
	Payload() []byte
	PreventDefault()
	Target() Editable
}

// Copy is a CopyEvent that records what the handler did with it
type Copy struct {
	Content   string
	Prevented bool
	Committed string
	committed bool
}

func (c *Copy) Text() string    { return c.Content }
func (c *Copy) PreventDefault() { c.Prevented = true }

func (c *Copy) Commit(content string) {
	c.Committed = content
	c.committed = true
}

// WasCommitted reports whether Commit was called
func (c *Copy) WasCommitted() bool { return c.committed }

// Paste is a PasteEvent that records whether the native paste was prevented
type Paste struct {
	Content   string
	Meta      []byte
	Field     Editable
	Prevented bool
}

func (p *Paste) Text() string     { return p.Content }
func (p *Paste) Payload() []byte  { return p.Meta }
func (p *Paste) PreventDefault()  { p.Prevented = true }
func (p *Paste) Target() Editable { return p.Field }
