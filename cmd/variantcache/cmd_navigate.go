package main

import (
	"fmt"

	"variantcache/internal/navigation"
	"variantcache/internal/render"
	"variantcache/internal/variant"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	turnFlag      int
	roleFlag      string
	directionFlag string
)

// positionsCmd prints navigation state
var positionsCmd = &cobra.Command{
	Use:   "positions",
	Short: "Print the selected variant index and variant count of messages",
	Long: `Prints "index/total" for one message (--turn and --role) or for every
message of the conversation. The index is zero-based; 0/0 means the
message has no recorded variants.`,
	Args: cobra.NoArgs,
	RunE: runPositions,
}

// navigateCmd steps through variants
var navigateCmd = &cobra.Command{
	Use:   "navigate",
	Short: "Select the next or previous variant of a message",
	Long: `Moves the selection of one message and writes the selected variant into
the conversation history. Moving past the first or last variant does
nothing.

Example:
  variantcache navigate -c <id> --turn 0 --role assistant --direction retreat`,
	Args: cobra.NoArgs,
	RunE: runNavigate,
}

// showCmd renders the transcript
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Render the conversation with its variant affordances",
	Args:  cobra.NoArgs,
	RunE:  runShow,
}

func registerNavigationCommands() {
	positionsCmd.Flags().IntVarP(&turnFlag, "turn", "t", -1, "Turn index (default: all turns)")
	positionsCmd.Flags().StringVarP(&roleFlag, "role", "r", "assistant", "Message role (user, assistant)")

	navigateCmd.Flags().IntVarP(&turnFlag, "turn", "t", -1, "Turn index")
	navigateCmd.Flags().StringVarP(&roleFlag, "role", "r", "assistant", "Message role (user, assistant)")
	navigateCmd.Flags().StringVar(&directionFlag, "direction", "", "advance or retreat (also right/left)")
	navigateCmd.MarkFlagRequired("turn")
	navigateCmd.MarkFlagRequired("direction")

	rootCmd.AddCommand(positionsCmd, navigateCmd, showCmd)
}

func runPositions(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	out := cmd.OutOrStdout()

	if turnFlag >= 0 {
		role, err := variant.ParseRole(roleFlag)
		if err != nil {
			return err
		}
		pos := app.engine.Positions(ctx, app.key(), turnFlag, role)
		fmt.Fprintf(out, "%d/%d\n", pos.Selected, pos.Total)
		return nil
	}

	c, err := app.open()
	if err != nil {
		return err
	}
	for turn, tp := range app.positions(ctx, c) {
		fmt.Fprintf(out, "turn %d user %d/%d assistant %d/%d\n", turn,
			tp[variant.RoleUser].Selected, tp[variant.RoleUser].Total,
			tp[variant.RoleAssistant].Selected, tp[variant.RoleAssistant].Total)
	}
	return nil
}

func runNavigate(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	role, err := variant.ParseRole(roleFlag)
	if err != nil {
		return err
	}
	dir, err := navigation.ParseDirection(directionFlag)
	if err != nil {
		return err
	}
	c, err := app.open()
	if err != nil {
		return err
	}

	outcome := app.engine.Navigate(ctx, app.key(), turnFlag, role, dir, c.History)
	if outcome.Mirrored {
		if err := app.save(c); err != nil {
			return err
		}
	}
	logger.Debug("Navigated",
		zap.Int("turn", turnFlag),
		zap.String("direction", string(dir)),
		zap.Bool("moved", outcome.Moved))

	status := "unchanged"
	if outcome.Moved {
		status = "moved"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %d/%d\n", status, outcome.Selected, outcome.Total)
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	c, err := app.open()
	if err != nil {
		return err
	}
	out := app.renderer.Transcript(c.History, app.positions(ctx, c), render.Cursor{})
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}
