package discord

import (
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/scottdmilner/pipebot/internal/report"
)

// submission is a modal submit routed back to the waiting command.
type submission struct {
	result      report.FormResult
	interaction *discordgo.Interaction
}

// formRegistry routes modal submissions to the command waiting on them,
// keyed by the form's custom ID.
type formRegistry struct {
	mu      sync.Mutex
	waiting map[string]chan submission
}

func newFormRegistry() *formRegistry {
	return &formRegistry{waiting: make(map[string]chan submission)}
}

func (r *formRegistry) register(id string) <-chan submission {
	ch := make(chan submission, 1)
	r.mu.Lock()
	r.waiting[id] = ch
	r.mu.Unlock()
	return ch
}

func (r *formRegistry) unregister(id string) {
	r.mu.Lock()
	delete(r.waiting, id)
	r.mu.Unlock()
}

// withdraw unregisters id and returns any submission that was delivered
// before the waiter gave up on it.
func (r *formRegistry) withdraw(id string, ch <-chan submission) (submission, bool) {
	r.unregister(id)
	select {
	case sub := <-ch:
		return sub, true
	default:
		return submission{}, false
	}
}

// deliver hands sub to the waiter for id. It reports false if nobody waits.
// The send happens under the lock so withdraw never misses it; the channel
// holds one submission and the entry is removed, so it cannot block.
func (r *formRegistry) deliver(id string, sub submission) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.waiting[id]
	if !ok {
		return false
	}
	delete(r.waiting, id)
	ch <- sub
	return true
}

// modalResponse renders form as a Discord modal.
func modalResponse(form report.Form) *discordgo.InteractionResponse {
	components := make([]discordgo.MessageComponent, 0, len(form.Fields))
	for _, f := range form.Fields {
		style := discordgo.TextInputShort
		if f.Style == report.FieldParagraph {
			style = discordgo.TextInputParagraph
		}
		components = append(components, discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.TextInput{
					CustomID:    f.ID,
					Label:       f.Label,
					Style:       style,
					Placeholder: f.Placeholder,
					Required:    f.Required,
					MinLength:   f.MinLength,
					MaxLength:   f.MaxLength,
				},
			},
		})
	}

	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID:   form.ID,
			Title:      form.Title,
			Components: components,
		},
	}
}

// formValues collects text input values from a modal submission.
func formValues(components []discordgo.MessageComponent) map[string]string {
	values := make(map[string]string)
	for _, c := range components {
		var row []discordgo.MessageComponent
		switch r := c.(type) {
		case *discordgo.ActionsRow:
			row = r.Components
		case discordgo.ActionsRow:
			row = r.Components
		default:
			continue
		}
		for _, inner := range row {
			switch in := inner.(type) {
			case *discordgo.TextInput:
				values[in.CustomID] = in.Value
			case discordgo.TextInput:
				values[in.CustomID] = in.Value
			}
		}
	}
	return values
}
