package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Togather-Foundation/eventos/internal/domain/media"
)

var (
	mediaWidth  int
	mediaHeight int
)

var mediaCmd = &cobra.Command{
	Use:   "media",
	Short: "Attach, detach and list event media",
	Long: `Attach, detach and list the capa, video and carrossel media of an event.

Images must be exactly 1280x720 unless the configuration says otherwise. Video geometry is
taken from --width/--height when given.`,
}

var mediaAttachCmd = &cobra.Command{
	Use:   "attach ID CLASS FILE",
	Short: "Validate FILE and attach it to the event under CLASS",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		class, err := media.ParseClass(args[1])
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		dir, err := os.MkdirTemp("", "eventos-staging-*")
		if err != nil {
			return fmt.Errorf("create staging dir: %w", err)
		}
		defer os.RemoveAll(dir)

		file, err := stageFile(dir, args[2], mediaWidth, mediaHeight)
		if err != nil {
			return err
		}
		_, item, err := a.events.AttachMedia(ctx, args[0], class, file, callerID)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), item)
	},
}

var mediaDetachCmd = &cobra.Command{
	Use:   "detach ID CLASS MEDIA_ID",
	Short: "Remove a media item and its file",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		class, err := media.ParseClass(args[1])
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		item, err := a.events.DetachMedia(ctx, args[0], class, args[2], callerID)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), item)
	},
}

var mediaListCmd = &cobra.Command{
	Use:   "list ID [CLASS]",
	Short: "List the media of an event",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		classes := media.Classes
		if len(args) == 2 {
			class, err := media.ParseClass(args[1])
			if err != nil {
				return err
			}
			classes = []media.Class{class}
		}

		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		out := make(map[media.Class][]media.Item, len(classes))
		for _, class := range classes {
			items, err := a.events.ListMedia(ctx, args[0], class)
			if err != nil {
				return err
			}
			out[class] = items
		}
		return printJSON(cmd.OutOrStdout(), out)
	},
}

var mediaRulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Print the acceptance rule of every media class",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		rules, err := mediaRules(cfg.Media.Rules)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), describeRules(media.NewValidator(rules)))
	},
}

func init() {
	mediaCmd.AddCommand(mediaAttachCmd)
	mediaCmd.AddCommand(mediaRulesCmd)
	mediaCmd.AddCommand(mediaDetachCmd)
	mediaCmd.AddCommand(mediaListCmd)

	mediaAttachCmd.Flags().IntVar(&mediaWidth, "width", 0, "declared width in pixels (video only)")
	mediaAttachCmd.Flags().IntVar(&mediaHeight, "height", 0, "declared height in pixels (video only)")
}
