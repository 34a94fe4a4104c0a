package hdf5

import (
	"fmt"
	"strings"

	"github.com/scigolib/dsconv/internal/core"
	"github.com/scigolib/dsconv/internal/structures"
	"github.com/scigolib/dsconv/internal/utils"
)

// object holds what groups and datasets share: the file, the absolute path
// and the parsed object header.
type object struct {
	file   *File
	path   string
	header *core.ObjectHeader
}

// Path returns the absolute path of the object.
func (o *object) Path() string {
	return o.path
}

// Attrs decodes every attribute attached to the object, in header order.
func (o *object) Attrs() ([]*Attribute, error) {
	msgs, err := o.attributeMessages()
	if err != nil {
		return nil, err
	}
	attrs := make([]*Attribute, 0, len(msgs))
	for _, m := range msgs {
		a, err := o.decodeAttribute(m)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, a)
	}
	return attrs, nil
}

// Attr returns the named attribute. A missing attribute yields an error
// matching ErrNotFound. Only the matching attribute is decoded.
func (o *object) Attr(name string) (*Attribute, error) {
	msgs, err := o.attributeMessages()
	if err != nil {
		return nil, err
	}
	for _, m := range msgs {
		n, err := core.AttributeMessageName(m.Data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", o.path, err)
		}
		if n == name {
			return o.decodeAttribute(m)
		}
	}
	return nil, notFound(o.path + "@" + name)
}

func (o *object) attributeMessages() ([]*core.HeaderMessage, error) {
	if msg := o.header.Find(core.MsgAttributeInfo); msg != nil && denseAttributes(msg.Data, o.file.sb) {
		return nil, fmt.Errorf("%s: dense attribute storage: %w", o.path, ErrUnsupported)
	}
	return o.header.FindAll(core.MsgAttribute), nil
}

func (o *object) decodeAttribute(m *core.HeaderMessage) (*Attribute, error) {
	am, err := core.ParseAttributeMessage(m.Data, o.file.sb)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", o.path, err)
	}
	a, err := o.file.newAttribute(am)
	if err != nil {
		return nil, fmt.Errorf("%s: attribute %q: %w", o.path, am.Name, err)
	}
	return a, nil
}

// denseAttributes reports whether an attribute info message points at a
// fractal heap: version, flags, [max creation index], heap address.
func denseAttributes(data []byte, sb *core.Superblock) bool {
	if len(data) < 2 {
		return false
	}
	pos := 2
	if data[1]&0x01 != 0 {
		pos += 2
	}
	addr, err := utils.DecodeAddress(data[min(pos, len(data)):], int(sb.OffsetSize))
	return err == nil && addr != utils.UndefinedAddress
}

// link is a named hard link from a group to an object header.
type link struct {
	name string
	addr uint64
}

// Group is an HDF5 group opened for reading.
type Group struct {
	object
	links []link
}

func (f *File) openGroup(path string, addr uint64) (*Group, error) {
	oh, err := f.readHeader(addr)
	if err != nil {
		return nil, err
	}
	if oh.Type() != core.ObjectTypeGroup {
		return nil, fmt.Errorf("%s is a dataset, not a group: %w", path, ErrTypeMismatch)
	}

	g := &Group{object: object{file: f, path: path, header: oh}}
	if msg := oh.Find(core.MsgSymbolTable); msg != nil {
		err = g.loadSymbolTable(msg.Data)
	} else {
		err = g.loadLinkMessages()
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

// loadSymbolTable reads the links of an old-style group from its B-tree,
// symbol table nodes and local heap.
func (g *Group) loadSymbolTable(data []byte) error {
	f := g.file
	st, err := core.ParseSymbolTableMessage(data, f.sb)
	if err != nil {
		return err
	}
	heap, err := structures.LoadLocalHeap(f.osFile, st.HeapAddress, f.sb)
	if err != nil {
		return err
	}
	return structures.WalkGroupBTree(f.osFile, st.BTreeAddress, f.sb, func(snod uint64) error {
		entries, err := structures.ParseSymbolTableNode(f.osFile, snod, f.sb)
		if err != nil {
			return err
		}
		for _, e := range entries {
			name, err := heap.GetString(e.LinkNameOffset)
			if err != nil {
				return err
			}
			g.links = append(g.links, link{name: name, addr: e.ObjectAddress})
		}
		return nil
	})
}

// loadLinkMessages reads compact links stored directly in the header.
func (g *Group) loadLinkMessages() error {
	if msg := g.header.Find(core.MsgLinkInfo); msg != nil {
		li, err := core.ParseLinkInfo(msg.Data, g.file.sb)
		if err != nil {
			return err
		}
		if li.Dense() {
			return fmt.Errorf("dense link storage: %w", ErrUnsupported)
		}
	}
	for _, msg := range g.header.FindAll(core.MsgLink) {
		lm, err := core.ParseLinkMessage(msg.Data, g.file.sb)
		if err != nil {
			return err
		}
		if lm.Type != core.LinkHard {
			// Soft and external links are listed nowhere; nothing in a
			// scattering file uses them.
			continue
		}
		g.links = append(g.links, link{name: lm.Name, addr: lm.Address})
	}
	return nil
}

// Names returns the names of the group's members in storage order.
func (g *Group) Names() []string {
	names := make([]string, len(g.links))
	for i, l := range g.links {
		names[i] = l.name
	}
	return names
}

// Has reports whether the group has a member with the given name.
func (g *Group) Has(name string) bool {
	_, ok := g.lookup(name)
	return ok
}

func (g *Group) lookup(name string) (uint64, bool) {
	for _, l := range g.links {
		if l.name == name {
			return l.addr, true
		}
	}
	return 0, false
}

// Group opens a descendant group by relative path.
func (g *Group) Group(path string) (*Group, error) {
	cur := g
	for _, part := range splitPath(path) {
		addr, ok := cur.lookup(part)
		if !ok {
			return nil, notFound(joinPath(cur.path, part))
		}
		next, err := g.file.openGroup(joinPath(cur.path, part), addr)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

// Dataset opens a descendant dataset by relative path.
func (g *Group) Dataset(path string) (*Dataset, error) {
	parts := splitPath(path)
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty dataset path: %w", ErrNotFound)
	}
	parent := g
	if len(parts) > 1 {
		var err error
		if parent, err = g.Group(strings.Join(parts[:len(parts)-1], "/")); err != nil {
			return nil, err
		}
	}
	name := parts[len(parts)-1]
	addr, ok := parent.lookup(name)
	if !ok {
		return nil, notFound(joinPath(parent.path, name))
	}
	return g.file.openDataset(joinPath(parent.path, name), addr)
}

// Kind reports whether the named member is a group or a dataset.
func (g *Group) Kind(name string) (core.ObjectType, error) {
	addr, ok := g.lookup(name)
	if !ok {
		return 0, notFound(joinPath(g.path, name))
	}
	oh, err := g.file.readHeader(addr)
	if err != nil {
		return 0, err
	}
	return oh.Type(), nil
}
