// Package discord connects pipebot to Discord: it delivers notifications and
// serves the /report command.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/scottdmilner/pipebot/internal/config"
	"github.com/scottdmilner/pipebot/internal/report"
)

const expiredFormMessage = "This form has expired. Please run /report bug again."

// Runner executes the report command for one interaction.
type Runner interface {
	Run(ctx context.Context, s report.Session, inv report.Invocation) error
}

// Bot owns the gateway session and dispatches interactions.
type Bot struct {
	session *discordgo.Session
	cfg     config.DiscordConfig
	runner  Runner
	logger  *slog.Logger
	forms   *formRegistry

	// ctx scopes command runs; set by Open.
	ctx context.Context

	respond  func(i *discordgo.Interaction, resp *discordgo.InteractionResponse) error
	followup func(i *discordgo.Interaction, params *discordgo.WebhookParams) error
}

// New creates a Bot. The session is not opened until Open.
func New(cfg config.DiscordConfig, runner Runner, logger *slog.Logger) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds

	b := newBot(cfg, runner, logger)
	b.session = session
	b.respond = func(i *discordgo.Interaction, resp *discordgo.InteractionResponse) error {
		return session.InteractionRespond(i, resp)
	}
	b.followup = func(i *discordgo.Interaction, params *discordgo.WebhookParams) error {
		_, err := session.FollowupMessageCreate(i, true, params)
		return err
	}
	return b, nil
}

func newBot(cfg config.DiscordConfig, runner Runner, logger *slog.Logger) *Bot {
	return &Bot{
		cfg:    cfg,
		runner: runner,
		logger: logger,
		forms:  newFormRegistry(),
		ctx:    context.Background(),
	}
}

// Session returns the underlying gateway session.
func (b *Bot) Session() *discordgo.Session {
	return b.session
}

// Open connects to the gateway and waits for the Ready event. It then checks
// that every configured channel is a guild text channel and registers the
// /report command.
func (b *Bot) Open(ctx context.Context) error {
	b.ctx = ctx

	ready := make(chan struct{})
	removeReady := b.session.AddHandlerOnce(func(_ *discordgo.Session, r *discordgo.Ready) {
		b.logger.Info("discord session ready", "user", r.User.Username)
		close(ready)
	})
	b.session.AddHandler(func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
		b.handleInteraction(i.Interaction)
	})

	if err := b.session.Open(); err != nil {
		removeReady()
		return fmt.Errorf("discord gateway: %w", err)
	}

	select {
	case <-ready:
	case <-ctx.Done():
		b.session.Close()
		return ctx.Err()
	}

	if err := b.verifyChannels(ctx); err != nil {
		b.session.Close()
		return err
	}

	appID := b.session.State.User.ID
	if _, err := b.session.ApplicationCommandBulkOverwrite(appID, b.cfg.GuildID,
		[]*discordgo.ApplicationCommand{reportCommand()}, discordgo.WithContext(ctx)); err != nil {
		b.session.Close()
		return fmt.Errorf("register commands: %w", err)
	}
	b.logger.Info("discord commands registered", "guild_id", b.cfg.GuildID)

	return nil
}

// Close disconnects from the gateway.
func (b *Bot) Close() error {
	return b.session.Close()
}

func (b *Bot) verifyChannels(ctx context.Context) error {
	for name, id := range b.cfg.Channels {
		ch, err := b.session.Channel(id, discordgo.WithContext(ctx))
		if err != nil {
			return &config.ConfigurationError{
				Field:   "discord.channels." + name,
				Message: fmt.Sprintf("channel %s could not be fetched: %v", id, err),
			}
		}
		if ch.Type != discordgo.ChannelTypeGuildText {
			return &config.ConfigurationError{
				Field:   "discord.channels." + name,
				Message: fmt.Sprintf("channel %s is not a text channel", id),
			}
		}
	}
	return nil
}

func (b *Bot) handleInteraction(i *discordgo.Interaction) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		b.handleCommand(i)
	case discordgo.InteractionModalSubmit:
		b.handleModalSubmit(i)
	}
}

func (b *Bot) handleCommand(i *discordgo.Interaction) {
	inv, err := parseInvocation(i)
	if err != nil {
		b.logger.Warn("ignoring interaction", "error", err)
		return
	}

	sess := &interactionSession{bot: b, command: i}
	if err := b.runner.Run(b.ctx, sess, inv); err != nil {
		b.logger.Error("report command failed", "user_id", inv.User.ID, "error", err)
	}
}

// handleModalSubmit defers an ephemeral response within Discord's three
// second window, then wakes the command waiting on the form.
func (b *Bot) handleModalSubmit(i *discordgo.Interaction) {
	data := i.ModalSubmitData()
	if !strings.HasPrefix(data.CustomID, report.FormIDPrefix) {
		return
	}

	err := b.respond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
	if err != nil {
		b.logger.Warn("failed to defer modal response", "error", err)
	}

	sub := submission{
		result:      report.FormResult{Values: formValues(data.Components)},
		interaction: i,
	}
	if !b.forms.deliver(data.CustomID, sub) {
		if err := b.followup(i, ephemeral(expiredFormMessage)); err != nil {
			b.logger.Warn("failed to answer expired form", "error", err)
		}
	}
}

func ephemeral(content string) *discordgo.WebhookParams {
	return &discordgo.WebhookParams{
		Content: truncate(content, MaxContentLength),
		Flags:   discordgo.MessageFlagsEphemeral,
	}
}

// interactionSession implements report.Session for one command interaction.
type interactionSession struct {
	bot     *Bot
	command *discordgo.Interaction

	// modal is the submit interaction; acknowledgements follow up on it.
	modal *discordgo.Interaction
}

func (s *interactionSession) PresentForm(ctx context.Context, form report.Form) (report.FormResult, error) {
	ch := s.bot.forms.register(form.ID)
	defer s.bot.forms.unregister(form.ID)

	if err := s.bot.respond(s.command, modalResponse(form)); err != nil {
		return report.FormResult{}, fmt.Errorf("present form: %w", err)
	}

	timer := time.NewTimer(form.Timeout)
	defer timer.Stop()

	select {
	case sub := <-ch:
		s.modal = sub.interaction
		return sub.result, nil
	case <-timer.C:
		s.expireForm(form.ID, ch)
		return report.FormResult{}, report.ErrFormTimeout
	case <-ctx.Done():
		s.expireForm(form.ID, ch)
		return report.FormResult{}, ctx.Err()
	}
}

// expireForm stops waiting on a form. A submission that raced the expiry has
// already been deferred, so it is told the form expired.
func (s *interactionSession) expireForm(id string, ch <-chan submission) {
	sub, ok := s.bot.forms.withdraw(id, ch)
	if !ok {
		return
	}
	if err := s.bot.followup(sub.interaction, ephemeral(expiredFormMessage)); err != nil {
		s.bot.logger.Warn("failed to answer expired form", "error", err)
	}
}

func (s *interactionSession) Acknowledge(_ context.Context, message string) error {
	if s.modal != nil {
		return s.bot.followup(s.modal, ephemeral(message))
	}
	err := s.bot.respond(s.command, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: truncate(message, MaxContentLength),
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		return fmt.Errorf("acknowledge: %w", err)
	}
	return nil
}
