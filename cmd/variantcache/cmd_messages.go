package main

import (
	"context"
	"fmt"
	"strings"

	"variantcache/internal/transcript"
	"variantcache/internal/variant"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// messageOp places text into c and returns the turn and role it changed.
type messageOp func(ctx context.Context, c *transcript.Conversation, text string) (int, variant.Role, error)

// newCmd creates a conversation
var newCmd = &cobra.Command{
	Use:   "new",
	Short: "Create an empty conversation and print its id",
	Args:  cobra.NoArgs,
	RunE:  runNew,
}

func registerMessageCommands() {
	rootCmd.AddCommand(newCmd)
	rootCmd.AddCommand(
		messageCommand("send", "Send a user message", sendUser),
		messageCommand("reply", "Store a freshly generated reply", reply),
		messageCommand("regenerate", "Replace the last reply with a regenerated one", regenerate),
		messageCommand("continue", "Extend the last reply", continueReply),
		messageCommand("dummy-message", "Add a user message without generating a reply", dummyMessage),
		messageCommand("dummy-reply", "Inject an assistant reply without generating it", dummyReply),
		messageCommand("replace-last", "Overwrite the last reply with your own text", replaceLast),
	)
}

func messageCommand(name, short string, op messageOp) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <text>",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMessage(cmd, strings.Join(args, " "), op)
		},
	}
}

func runNew(cmd *cobra.Command, args []string) error {
	id, _, err := app.files.Create(participant, mode)
	if err != nil {
		return err
	}
	logger.Info("Created conversation", zap.String("id", id), zap.String("participant", participant))
	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}

func runMessage(cmd *cobra.Command, text string, op messageOp) error {
	ctx := commandContext(cmd)
	c, err := app.open()
	if err != nil {
		return err
	}

	turn, role, err := op(ctx, c, text)
	if err != nil {
		return err
	}
	if err := app.save(c); err != nil {
		return err
	}

	pos := app.engine.Positions(ctx, app.key(), turn, role)
	logger.Debug("Message stored",
		zap.Int("turn", turn),
		zap.String("role", role.String()),
		zap.Int("variants", pos.Total))
	fmt.Fprintf(cmd.OutOrStdout(), "turn %d %s %d/%d\n", turn, role, pos.Selected, pos.Total)
	return nil
}

func sendUser(ctx context.Context, c *transcript.Conversation, text string) (int, variant.Role, error) {
	return app.pipeline.SendUser(ctx, c, text), variant.RoleUser, nil
}

func reply(ctx context.Context, c *transcript.Conversation, text string) (int, variant.Role, error) {
	return app.pipeline.Reply(ctx, c, text), variant.RoleAssistant, nil
}

func regenerate(ctx context.Context, c *transcript.Conversation, text string) (int, variant.Role, error) {
	turn, err := app.pipeline.Regenerate(ctx, c, text)
	return turn, variant.RoleAssistant, err
}

func continueReply(ctx context.Context, c *transcript.Conversation, text string) (int, variant.Role, error) {
	turn, err := app.pipeline.Continue(ctx, c, text)
	return turn, variant.RoleAssistant, err
}

func dummyMessage(ctx context.Context, c *transcript.Conversation, text string) (int, variant.Role, error) {
	return app.pipeline.DummyMessage(ctx, c, text), variant.RoleUser, nil
}

func dummyReply(ctx context.Context, c *transcript.Conversation, text string) (int, variant.Role, error) {
	return app.pipeline.DummyReply(ctx, c, text), variant.RoleAssistant, nil
}

func replaceLast(ctx context.Context, c *transcript.Conversation, text string) (int, variant.Role, error) {
	_, err := app.engine.ReplaceLastReply(ctx, app.key(), c.History, func() error {
		_, err := app.pipeline.ReplaceLastReply(ctx, c, text)
		return err
	})
	return c.History.Last(), variant.RoleAssistant, err
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
