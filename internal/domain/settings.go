package domain

// MaxQuestions bounds the application form; platforms cap forms at a handful
// of inputs and the configuration command addresses slots 1..10.
const MaxQuestions = 10

// TicketSettings configures the ticket panel.
type TicketSettings struct {
	PanelMessage string   `yaml:"panel_message"`
	Options      []string `yaml:"options"`
	Category     string   `yaml:"category"`
	ViewerRole   string   `yaml:"viewer_role"`
	LogChannel   string   `yaml:"log_channel"`
}

// ApplicationSettings configures the application panel.
type ApplicationSettings struct {
	PanelMessage string       `yaml:"panel_message"`
	Roles        []RoleOption `yaml:"roles"`
	// Questions is indexed by slot; empty slots are skipped when the form
	// is built.
	Questions  [MaxQuestions]string `yaml:"-"`
	LogChannel string               `yaml:"log_channel"`
}

// ActiveQuestions returns the configured questions in slot order.
func (a ApplicationSettings) ActiveQuestions() []string {
	out := make([]string, 0, MaxQuestions)
	for _, q := range a.Questions {
		if q != "" {
			out = append(out, q)
		}
	}
	return out
}

// Role finds a configured role option by id.
func (a ApplicationSettings) Role(id string) (RoleOption, bool) {
	for _, r := range a.Roles {
		if r.ID == id {
			return r, true
		}
	}
	return RoleOption{}, false
}

// Settings is one immutable configuration snapshot. Engines read the
// snapshot current at the moment they act.
type Settings struct {
	Version      int64
	Tickets      TicketSettings
	Applications ApplicationSettings
}

// Clone returns a deep copy safe to mutate.
func (s Settings) Clone() Settings {
	out := s
	out.Tickets.Options = append([]string(nil), s.Tickets.Options...)
	out.Applications.Roles = append([]RoleOption(nil), s.Applications.Roles...)
	return out
}
