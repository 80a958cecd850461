package hotkey

type FakeHotkey struct {
	edges chan Edge
}

func NewFake() *FakeHotkey {
	return &FakeHotkey{edges: make(chan Edge, edgeBuffer)}
}

func (f *FakeHotkey) Register() error    { return nil }
func (f *FakeHotkey) Unregister()        {}
func (f *FakeHotkey) Edges() <-chan Edge { return f.edges }

func (f *FakeHotkey) SimKeydown(c Combo) { f.edges <- Edge{Combo: c, Down: true} }
func (f *FakeHotkey) SimKeyup(c Combo)   { f.edges <- Edge{Combo: c} }
