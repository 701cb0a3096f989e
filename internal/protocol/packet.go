package protocol

// Packet is the parse context of one schema pass: an ordered mapping of
// field name to the value already placed by earlier fields, plus pass
// bookkeeping. Length, condition and selector callbacks read it.
type Packet struct {
	keys   []string
	values map[string]any

	// Remaining is the unread length budget of the pass, -1 when unknown.
	Remaining int
	// OptionPadding is the byte count left after an option list stopped
	// at its end-of-list item.
	OptionPadding int
	// Parent is the context of the enclosing schema, nil at top level.
	Parent *Packet
}

func NewPacket(parent *Packet) *Packet {
	return &Packet{
		values:    make(map[string]any),
		Remaining: -1,
		Parent:    parent,
	}
}

// Set records name=v. Overwriting keeps the first-seen position.
func (p *Packet) Set(name string, v any) {
	if _, ok := p.values[name]; !ok {
		p.keys = append(p.keys, name)
	}
	p.values[name] = v
}

func (p *Packet) Get(name string) (any, bool) {
	v, ok := p.values[name]
	return v, ok
}

// Value returns the recorded value or NoValue.
func (p *Packet) Value(name string) any {
	if v, ok := p.values[name]; ok {
		return v
	}
	return NoValue
}

func (p *Packet) Has(name string) bool {
	_, ok := p.values[name]
	return ok
}

func (p *Packet) Keys() []string {
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

func (p *Packet) Len() int { return len(p.keys) }

// Int returns the numeric form of name, 0 when absent or non-numeric.
func (p *Packet) Int(name string) int64 {
	v, ok := ToInt64(p.Value(name))
	if !ok {
		return 0
	}
	return v
}

// Bit returns sub-field sub of the bit group recorded under name.
func (p *Packet) Bit(name, sub string) uint64 {
	m, ok := p.Value(name).(map[string]uint64)
	if !ok {
		return 0
	}
	return m[sub]
}

func (p *Packet) Flag(name, sub string) bool {
	return p.Bit(name, sub) != 0
}

// Clone copies the mapping and bookkeeping. The parent link is shared.
func (p *Packet) Clone() *Packet {
	out := &Packet{
		keys:          make([]string, len(p.keys)),
		values:        make(map[string]any, len(p.values)),
		Remaining:     p.Remaining,
		OptionPadding: p.OptionPadding,
		Parent:        p.Parent,
	}
	copy(out.keys, p.keys)
	for k, v := range p.values {
		out.values[k] = v
	}
	return out
}
