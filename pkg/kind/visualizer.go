package kind

import (
	"fmt"
	"strings"
)

// ToDOT renders the kind's state graph as Graphviz DOT, for operator
// inspection (e.g. `fsmrtd inspect kinds --dot <name>`). Grounded on
// statemachine.Visualizer.ToMermaid's structure, adapted to the DOT
// language since this runtime's CLI favors piping straight into `dot`.
func (k *KindDefinition) ToDOT() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "digraph %s {\n", sanitizeID(k.Name))
	sb.WriteString("  rankdir=LR;\n")
	fmt.Fprintf(&sb, "  __start__ [shape=point];\n  __start__ -> %s;\n", sanitizeID(k.InitialState))
	for _, name := range k.stateOrder {
		fmt.Fprintf(&sb, "  %s [shape=box];\n", sanitizeID(name))
	}
	for _, t := range k.transitions {
		label := t.Event
		if len(t.Guards) > 0 {
			label += fmt.Sprintf(" [%d guard(s)]", len(t.Guards))
		}
		fmt.Fprintf(&sb, "  %s -> %s [label=%q];\n", sanitizeID(t.From), sanitizeID(t.To), label)
	}
	sb.WriteString("}\n")
	return sb.String()
}

func sanitizeID(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
