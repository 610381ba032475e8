package discord

import (
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/scottdmilner/pipebot/internal/report"
)

// Command and option names.
const (
	commandName    = "report"
	subcommandBug  = "bug"
	optionCategory = "category"
	optionSeverity = "severity"
	optionImage1   = "image1"
	optionImage2   = "image2"
)

func choices(cs []report.Choice) []*discordgo.ApplicationCommandOptionChoice {
	out := make([]*discordgo.ApplicationCommandOptionChoice, len(cs))
	for i, c := range cs {
		out[i] = &discordgo.ApplicationCommandOptionChoice{Name: c.Display, Value: c.Value}
	}
	return out
}

// reportCommand is the /report slash command with its bug subcommand.
func reportCommand() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        commandName,
		Description: "Report to the pipeline team",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        subcommandBug,
				Description: "Report a bug to the pipeline team. Please be detailed!",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        optionCategory,
						Description: "What are you having an issue with?",
						Required:    true,
						Choices:     choices(report.Categories),
					},
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        optionSeverity,
						Description: "How important is this issue",
						Required:    true,
						Choices:     choices(report.Severities),
					},
					{
						Type:        discordgo.ApplicationCommandOptionAttachment,
						Name:        optionImage1,
						Description: "Attach an image of the issue (optional)",
					},
					{
						Type:        discordgo.ApplicationCommandOptionAttachment,
						Name:        optionImage2,
						Description: "Attach an image of the issue (optional)",
					},
				},
			},
		},
	}
}

// parseInvocation extracts the report options from a /report bug interaction.
func parseInvocation(i *discordgo.Interaction) (report.Invocation, error) {
	data := i.ApplicationCommandData()
	if data.Name != commandName || len(data.Options) != 1 || data.Options[0].Name != subcommandBug {
		return report.Invocation{}, fmt.Errorf("unsupported command %q", data.Name)
	}

	inv := report.Invocation{User: reporter(i)}
	for _, opt := range data.Options[0].Options {
		value, _ := opt.Value.(string)
		switch opt.Name {
		case optionCategory:
			inv.Category = value
		case optionSeverity:
			inv.Severity = value
		case optionImage1:
			inv.Attachments[0] = resolvedAttachment(data.Resolved, value)
		case optionImage2:
			inv.Attachments[1] = resolvedAttachment(data.Resolved, value)
		}
	}
	return inv, nil
}

func resolvedAttachment(resolved *discordgo.ApplicationCommandInteractionDataResolved, id string) *report.Attachment {
	if resolved == nil || id == "" {
		return nil
	}
	a, ok := resolved.Attachments[id]
	if !ok || a == nil {
		return nil
	}
	return &report.Attachment{
		Filename:    a.Filename,
		ContentType: a.ContentType,
		Size:        a.Size,
		URL:         a.URL,
	}
}

// reporter identifies the invoking user by their guild nickname, global
// display name, or username, in that order.
func reporter(i *discordgo.Interaction) report.User {
	var nick string
	user := i.User
	if i.Member != nil {
		nick = i.Member.Nick
		if i.Member.User != nil {
			user = i.Member.User
		}
	}
	if user == nil {
		return report.User{DisplayName: nick}
	}

	name := nick
	if name == "" {
		name = user.GlobalName
	}
	if name == "" {
		name = user.Username
	}
	return report.User{ID: user.ID, DisplayName: name}
}
