package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Atyanta/VideoFaceDLFromYt/internal/config"
	"github.com/Atyanta/VideoFaceDLFromYt/internal/store"
	"github.com/Atyanta/VideoFaceDLFromYt/internal/utils"
)

var errNoCatalog = errors.New("no catalog configured (set DATABASE_URL or POSTGRES_HOST)")

var clipsPerson string

var clipsCmd = &cobra.Command{
	Use:   "clips",
	Short: "List clips recorded in the catalog",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		s, err := openCatalog(cmd.Context())
		if err != nil {
			utils.Die("Failed to open catalog", err, nil)
		}
		defer s.Close(context.Background())

		clips, err := s.ListClips(cmd.Context(), clipsPerson)
		if err != nil {
			utils.Die("Failed to list clips", err, nil)
		}
		printClips(os.Stdout, clips)
	},
}

func init() {
	clipsCmd.Flags().StringVar(&clipsPerson, "person", "", "Only list clips of this person")
	rootCmd.AddCommand(clipsCmd)
}

func openCatalog(ctx context.Context) (*store.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, errNoCatalog
	}
	return store.New(ctx, cfg.DatabaseURL)
}

func printClips(out io.Writer, clips []store.Clip) {
	if len(clips) == 0 {
		fmt.Fprintln(out, "No clips found in catalog.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tPERSON\tVIDEO\tFRAMES\tBOX\tCLIP\tCREATED")
	fmt.Fprintln(w, "--\t------\t-----\t------\t---\t----\t-------")

	for _, c := range clips {
		r := c.Record
		fmt.Fprintf(w, "%d\t%s\t%s\t%d-%d\t%d,%d,%d,%d\t%s\t%s\n",
			c.ID, r.PersonName, r.VideoID, r.StartFrame, r.EndFrame,
			r.Box.Left, r.Box.Top, r.Box.Right, r.Box.Bottom,
			c.ClipPath, c.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	w.Flush()
}
