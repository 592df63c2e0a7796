package matcher

import (
	"fmt"

	"github.com/howard-nolan/codegate/internal/embed"
	"github.com/howard-nolan/codegate/internal/rules"
)

// Spec is the control-plane wire shape for one persisted mux rule,
// decoupled from the concrete matcher constructors' signatures so the
// HTTP layer can decode a rule list without knowing matcher internals.
// It mirrors the matcher_type discriminator rulematcher.py's
// MuxingMatcherFactory switches on.
type Spec struct {
	Type         string
	Priority     int
	Pattern      string
	PersonaID    string
	Threshold    float32
	WeightFactor float32
	Route        rules.ModelRoute
}

// PersonaLookup resolves a persona name to its stored embedding, the way
// MuxingMatcherFactory resolves a persisted rule's persona_id against
// the persona table before constructing a PersonaDescMuxMatcher.
type PersonaLookup func(name string) (embedding []float32, ok bool)

// Matcher kind discriminators a Spec.Type may carry, mirroring the
// matcher_type strings a persisted mux rule stores.
const (
	KindCatchAll     = "catch_all"
	KindFilename     = "filename_match"
	KindFIMFilename  = "fim_filename"
	KindChatFilename = "chat_filename"
	KindUserPersona  = "user_persona"
	KindSysPersona   = "sys_persona"
)

// Build constructs the concrete rules.Matcher a Spec describes,
// mirroring rulematcher.py's MuxingMatcherFactory.create factory
// method. embedder and lookup are only consulted for the two persona
// kinds; either may be zero-valued for workspaces with no persona rules.
func Build(spec Spec, lookup PersonaLookup, embedder embed.Embedder) (rules.Matcher, error) {
	switch spec.Type {
	case KindCatchAll:
		return &CatchAll{Route: spec.Route, RulePriority: spec.Priority}, nil

	case KindFilename:
		return &FilenameMatch{Route: spec.Route, RulePriority: spec.Priority, Pattern: spec.Pattern}, nil

	case KindFIMFilename:
		return NewFIMFilenameMatch(spec.Route, spec.Priority, spec.Pattern, nil), nil

	case KindChatFilename:
		return NewChatFilenameMatch(spec.Route, spec.Priority, spec.Pattern, nil), nil

	case KindUserPersona, KindSysPersona:
		if lookup == nil {
			return nil, fmt.Errorf("matcher: persona rule %q requires a persona lookup", spec.PersonaID)
		}
		embedding, ok := lookup(spec.PersonaID)
		if !ok {
			return nil, fmt.Errorf("matcher: unknown persona %q", spec.PersonaID)
		}
		if spec.Type == KindUserPersona {
			return NewUserPersonaDesc(spec.Route, spec.Priority, spec.PersonaID, embedding, spec.Threshold, spec.WeightFactor, embedder), nil
		}
		return NewSysPromptPersonaDesc(spec.Route, spec.Priority, spec.PersonaID, embedding, spec.Threshold, spec.WeightFactor, embedder), nil

	default:
		return nil, fmt.Errorf("matcher: unknown rule type %q", spec.Type)
	}
}
