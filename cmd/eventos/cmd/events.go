package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Togather-Foundation/eventos/internal/domain/events"
	"github.com/Togather-Foundation/eventos/internal/domain/media"
)

var (
	eventTitle       string
	eventDescription string
	eventVenue       string
	eventDate        string
	eventCategory    string
	eventTags        []string
	eventSignupLink  string

	eventCover       []string
	eventVideo       []string
	eventCarousel    []string
	eventVideoWidth  int
	eventVideoHeight int

	listStatus      string
	listTitle       string
	listDescription string
	listVenue       string
	listCategory    string
	listTag         string
	listFrom        string
	listTo          string
	listPeriod      string
	listLimit       int
	listPage        int

	statusRequireMedia bool
	grantSpecs         []string
	qrcodeOut          string
)

// eventsCmd represents the events command
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Create and manage events",
	Long: `Create and manage events.

Examples:
  # Create an event with its media
  eventos --as 01J... events create --title "Sarau" --venue "Praça" \
    --date 2026-11-20T19:00:00Z --cover capa.png --video promo.mp4 --carousel a.png,b.png

  # Let another account edit it until the end of the year
  eventos --as 01J... events grant 01K... --grant 01M...=2026-12-31T23:59:59Z

  # Publish it once every media list is filled
  eventos --as 01J... events status 01K... ativo --require-media`,
}

var eventsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an event owned by the --as account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		caller, err := a.caller(ctx)
		if err != nil {
			return err
		}
		draft, err := draftFromFlags()
		if err != nil {
			return err
		}

		dir, err := os.MkdirTemp("", "eventos-staging-*")
		if err != nil {
			return fmt.Errorf("create staging dir: %w", err)
		}
		defer os.RemoveAll(dir)

		staged := map[media.Class][]media.StagedFile{}
		for class, paths := range map[media.Class][]string{
			media.ClassCover:    eventCover,
			media.ClassVideo:    eventVideo,
			media.ClassCarousel: eventCarousel,
		} {
			for _, p := range paths {
				width, height := 0, 0
				if class == media.ClassVideo {
					width, height = eventVideoWidth, eventVideoHeight
				}
				file, err := stageFile(dir, p, width, height)
				if err != nil {
					return err
				}
				staged[class] = append(staged[class], file)
			}
		}

		ev, err := a.events.Create(ctx, caller, draft, staged)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), ev)
	},
}

var eventsShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Print one event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		ev, err := a.events.Get(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), ev)
	},
}

var eventsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the events visible to the --as account",
	Long: `List events. With --as, the events the account organizes or holds a valid grant on;
without it, active events only.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filters, err := filtersFromFlags()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		list, err := a.events.List(ctx, callerID, filters)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), list)
	},
}

var eventsUpdateCmd = &cobra.Command{
	Use:   "update ID",
	Short: "Change descriptive fields of an event",
	Long: `Change descriptive fields of an event. Only flags given on the command line are
written; organizer, grants, status and media cannot be changed here.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		patch, err := patchFromFlags(cmd)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		ev, err := a.events.UpdateDescriptive(ctx, args[0], patch, callerID)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), ev)
	},
}

var eventsStatusCmd = &cobra.Command{
	Use:   "status ID STATUS",
	Short: "Move an event to STATUS (organizer only)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		ev, err := a.events.SetStatus(ctx, args[0], events.SetStatusParams{
			Status:       events.Status(args[1]),
			RequireMedia: statusRequireMedia,
		}, callerID)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), ev)
	},
}

var eventsGrantCmd = &cobra.Command{
	Use:   "grant ID",
	Short: "Add or renew edit grants (organizer only)",
	Long: `Add or renew edit grants. Each --grant is SUBJECT=EXPIRY with EXPIRY in RFC 3339.
An existing grant for SUBJECT has its expiry replaced; other grants are kept.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		requests := make([]events.GrantRequest, 0, len(grantSpecs))
		for _, raw := range grantSpecs {
			req, err := parseGrant(raw)
			if err != nil {
				return err
			}
			requests = append(requests, req)
		}

		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		ev, err := a.events.UpdateGrants(ctx, args[0], requests, callerID)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), ev.Grants)
	},
}

var eventsDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete an event and its media (organizer only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		if err := a.events.Delete(ctx, args[0], callerID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
		return nil
	},
}

var eventsQRCodeCmd = &cobra.Command{
	Use:   "qrcode ID",
	Short: "Write a PNG QR code of the event's signup link",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		png, err := a.events.SignupQRCode(ctx, args[0])
		if err != nil {
			return err
		}
		if qrcodeOut == "" || qrcodeOut == "-" {
			_, err = cmd.OutOrStdout().Write(png)
			return err
		}
		return os.WriteFile(qrcodeOut, png, 0o644)
	},
}

func init() {
	eventsCmd.AddCommand(eventsCreateCmd)
	eventsCmd.AddCommand(eventsShowCmd)
	eventsCmd.AddCommand(eventsListCmd)
	eventsCmd.AddCommand(eventsUpdateCmd)
	eventsCmd.AddCommand(eventsStatusCmd)
	eventsCmd.AddCommand(eventsGrantCmd)
	eventsCmd.AddCommand(eventsDeleteCmd)
	eventsCmd.AddCommand(eventsQRCodeCmd)

	for _, c := range []*cobra.Command{eventsCreateCmd, eventsUpdateCmd} {
		c.Flags().StringVar(&eventTitle, "title", "", "event title")
		c.Flags().StringVar(&eventDescription, "description", "", "event description (HTML allowed)")
		c.Flags().StringVar(&eventVenue, "venue", "", "where the event happens")
		c.Flags().StringVar(&eventDate, "date", "", "event date (RFC 3339)")
		c.Flags().StringVar(&eventCategory, "category", "", "event category")
		c.Flags().StringSliceVar(&eventTags, "tag", nil, "event tags (repeatable or comma separated)")
		c.Flags().StringVar(&eventSignupLink, "signup-link", "", "signup URL")
	}

	eventsCreateCmd.Flags().StringSliceVar(&eventCover, "cover", nil, "cover image files")
	eventsCreateCmd.Flags().StringSliceVar(&eventVideo, "video", nil, "video files")
	eventsCreateCmd.Flags().StringSliceVar(&eventCarousel, "carousel", nil, "carousel image files")
	eventsCreateCmd.Flags().IntVar(&eventVideoWidth, "video-width", 0, "declared video width in pixels")
	eventsCreateCmd.Flags().IntVar(&eventVideoHeight, "video-height", 0, "declared video height in pixels")

	eventsListCmd.Flags().StringVar(&listStatus, "status", "", "only events in this status")
	eventsListCmd.Flags().StringVar(&listTitle, "title", "", "only events whose title contains this text")
	eventsListCmd.Flags().StringVar(&listDescription, "description", "", "only events whose description contains this text")
	eventsListCmd.Flags().StringVar(&listVenue, "venue", "", "only events whose venue contains this text")
	eventsListCmd.Flags().StringVar(&listCategory, "category", "", "only events in this category")
	eventsListCmd.Flags().StringVar(&listTag, "tag", "", "only events carrying this tag")
	eventsListCmd.Flags().StringVar(&listFrom, "from", "", "only events on or after this date (RFC 3339 or YYYY-MM-DD)")
	eventsListCmd.Flags().StringVar(&listTo, "to", "", "only events before this instant; a bare date includes that day")
	eventsListCmd.Flags().StringVar(&listPeriod, "period", "", "anteriores, hoje or futuros (overrides --from/--to)")
	eventsListCmd.Flags().IntVarP(&listLimit, "limit", "n", 10, "events per page (up to 100)")
	eventsListCmd.Flags().IntVar(&listPage, "page", 1, "page number, starting at 1")

	eventsStatusCmd.Flags().BoolVar(&statusRequireMedia, "require-media", false, "refuse to activate unless cover, video and carousel all have items")
	eventsGrantCmd.Flags().StringArrayVar(&grantSpecs, "grant", nil, "SUBJECT=EXPIRY grant (repeatable)")
	eventsQRCodeCmd.Flags().StringVarP(&qrcodeOut, "out", "o", "", "output file (default stdout)")
}

func filtersFromFlags() (events.Filters, error) {
	from, err := parseListBound(listFrom, false)
	if err != nil {
		return events.Filters{}, fmt.Errorf("--from: %w", err)
	}
	to, err := parseListBound(listTo, true)
	if err != nil {
		return events.Filters{}, fmt.Errorf("--to: %w", err)
	}
	return events.Filters{
		Status:      events.Status(listStatus),
		Title:       listTitle,
		Description: listDescription,
		Venue:       listVenue,
		Category:    listCategory,
		Tag:         listTag,
		From:        from,
		To:          to,
		Period:      events.Period(listPeriod),
		Limit:       listLimit,
		Page:        listPage,
	}, nil
}

func draftFromFlags() (events.Draft, error) {
	draft := events.Draft{
		Title:       eventTitle,
		Description: eventDescription,
		Venue:       eventVenue,
		Category:    eventCategory,
		Tags:        eventTags,
		SignupLink:  eventSignupLink,
	}
	if eventDate != "" {
		date, err := time.Parse(time.RFC3339, eventDate)
		if err != nil {
			return events.Draft{}, fmt.Errorf("--date: %w", err)
		}
		draft.Date = date
	}
	return draft, nil
}

// patchFromFlags sets only the fields whose flags were given.
func patchFromFlags(cmd *cobra.Command) (events.DescriptivePatch, error) {
	var patch events.DescriptivePatch
	flags := cmd.Flags()
	if flags.Changed("title") {
		patch.Title = &eventTitle
	}
	if flags.Changed("description") {
		patch.Description = &eventDescription
	}
	if flags.Changed("venue") {
		patch.Venue = &eventVenue
	}
	if flags.Changed("category") {
		patch.Category = &eventCategory
	}
	if flags.Changed("tag") {
		tags := eventTags
		patch.Tags = &tags
	}
	if flags.Changed("signup-link") {
		patch.SignupLink = &eventSignupLink
	}
	if flags.Changed("date") {
		date, err := time.Parse(time.RFC3339, eventDate)
		if err != nil {
			return events.DescriptivePatch{}, fmt.Errorf("--date: %w", err)
		}
		patch.Date = &date
	}
	return patch, nil
}
