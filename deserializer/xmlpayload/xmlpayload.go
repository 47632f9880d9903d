// Package xmlpayload converts CAS service-validation responses
// (<serviceResponse><authenticationSuccess>...) into identities.
//
// Element matching uses local names only, so both the cas: prefixed form and
// unprefixed documents are accepted.
package xmlpayload

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/MrEthical07/goSSO/deserializer"
	"github.com/MrEthical07/goSSO/identity"
)

const (
	// DefaultIDElement is the element holding the principal name.
	DefaultIDElement = "user"

	rootElement     = "serviceResponse"
	successElement  = "authenticationSuccess"
	failureElement  = "authenticationFailure"
	attributesGroup = "attributes"
)

// Config controls the element names read from the response.
type Config struct {
	// IDElement names the child of authenticationSuccess holding the id.
	IDElement string
}

// Deserializer implements deserializer.Deserializer for CAS XML.
type Deserializer struct {
	idElement string
}

var _ deserializer.Deserializer = (*Deserializer)(nil)

// New returns a CAS deserializer.
func New(cfg Config) *Deserializer {
	el := strings.TrimSpace(cfg.IDElement)
	if el == "" {
		el = DefaultIDElement
	}
	return &Deserializer{idElement: el}
}

type node struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Text    string     `xml:",chardata"`
	Nodes   []node     `xml:",any"`
}

// Deserialize implements deserializer.Deserializer.
//
// The id element becomes the identifier. Children of <attributes> and every
// other child of <authenticationSuccess> become attributes: leaf elements map
// to strings, elements with children to objects, and repeated elements to a
// single list value.
func (d *Deserializer) Deserialize(payload string) (identity.Identity, error) {
	root, err := parseDocument(payload)
	if err != nil {
		return nil, deserializer.Malformed(err)
	}
	if root.XMLName.Local != rootElement {
		return nil, deserializer.Malformed(fmt.Errorf("unexpected root element <%s>", root.XMLName.Local))
	}

	var success *node
	for i := range root.Nodes {
		child := &root.Nodes[i]
		switch child.XMLName.Local {
		case failureElement:
			return nil, deserializer.MissingIdentifier(d.idElement, fmt.Errorf(
				"authentication failure %s: %s", attrValue(child, "code"), strings.TrimSpace(child.Text)))
		case successElement:
			if success != nil {
				return nil, deserializer.Malformed(errors.New("repeated authenticationSuccess element"))
			}
			success = child
		}
	}
	if success == nil {
		return nil, deserializer.Malformed(errors.New("no authenticationSuccess element"))
	}

	var (
		id     string
		idSeen bool
		attrs  = newGroup()
	)
	for i := range success.Nodes {
		child := &success.Nodes[i]
		switch child.XMLName.Local {
		case d.idElement:
			if idSeen {
				return nil, deserializer.TypeMismatch(d.idElement, "single element", "repeated element")
			}
			if len(child.Nodes) > 0 {
				return nil, deserializer.TypeMismatch(d.idElement, "text", "element")
			}
			idSeen = true
			id = strings.TrimSpace(child.Text)
		case attributesGroup:
			for j := range child.Nodes {
				attrs.add(&child.Nodes[j])
			}
		default:
			attrs.add(child)
		}
	}
	if id == "" {
		return nil, deserializer.MissingIdentifier(d.idElement, nil)
	}

	ident, err := identity.New(id, attrs.values())
	if err != nil {
		return nil, deserializer.Malformed(err)
	}
	return ident, nil
}

func parseDocument(payload string) (*node, error) {
	if strings.TrimSpace(payload) == "" {
		return nil, errors.New("empty payload")
	}

	dec := xml.NewDecoder(strings.NewReader(payload))
	var root node
	if err := dec.Decode(&root); err != nil {
		return nil, err
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return &root, nil
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.CharData:
			if len(strings.TrimSpace(string(t))) > 0 {
				return nil, errors.New("trailing text after root element")
			}
		case xml.StartElement:
			return nil, errors.New("multiple root elements")
		}
	}
}

// group collects child elements by local name, keeping first-seen order for
// repeated names.
type group struct {
	order []string
	items map[string][]identity.Value
}

func newGroup() *group {
	return &group{items: make(map[string][]identity.Value)}
}

func (g *group) add(n *node) {
	name := n.XMLName.Local
	if _, seen := g.items[name]; !seen {
		g.order = append(g.order, name)
	}
	g.items[name] = append(g.items[name], nodeValue(n))
}

func (g *group) values() map[string]identity.Value {
	out := make(map[string]identity.Value, len(g.order))
	for _, name := range g.order {
		items := g.items[name]
		if len(items) == 1 {
			out[name] = items[0]
		} else {
			out[name] = identity.List(items...)
		}
	}
	return out
}

func nodeValue(n *node) identity.Value {
	if len(n.Nodes) == 0 {
		return identity.String(strings.TrimSpace(n.Text))
	}
	children := newGroup()
	for i := range n.Nodes {
		children.add(&n.Nodes[i])
	}
	return identity.Object(children.values())
}

func attrValue(n *node, local string) string {
	for _, a := range n.Attrs {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}
