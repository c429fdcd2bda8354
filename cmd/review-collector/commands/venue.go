package commands

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yubol-bobo/Smart-AI-Conference/pkg/openreview"
)

// errNoVenue is returned when neither a flag nor the config names a venue.
var errNoVenue = errors.New("no venue given")

// venueFlags select the venue and its output directory.
type venueFlags struct {
	venue  string
	year   int
	output string
}

func (f *venueFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.venue, "venue", "", "OpenReview venue id, e.g. ICLR.cc/2025/Conference")
	cmd.Flags().IntVar(&f.year, "year", 0, "ICLR year, shorthand for --venue ICLR.cc/<year>/Conference")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "checkpoint directory (default <collection.outputDir>/<venue>)")
	cmd.MarkFlagsMutuallyExclusive("venue", "year")
}

// resolveVenue picks the venue: --venue, then --year, then the config.
func (f *venueFlags) resolveVenue(configured string) (string, error) {
	switch {
	case f.venue != "":
		return strings.TrimSpace(f.venue), nil
	case f.year != 0:
		if f.year < 2013 || f.year > 2100 {
			return "", fmt.Errorf("invalid --year %d", f.year)
		}
		return openreview.VenueForYear(f.year), nil
	case configured != "":
		return configured, nil
	}
	return "", errNoVenue
}

// resolveOutput picks the checkpoint directory: --output, or one directory
// per venue below baseDir so that several venues can share a base.
func (f *venueFlags) resolveOutput(baseDir, venue string) string {
	if f.output != "" {
		return f.output
	}
	return filepath.Join(baseDir, venueDir(venue))
}

// venueDir turns a venue id into a directory name:
// "ICLR.cc/2025/Conference" becomes "ICLR.cc_2025_Conference".
func venueDir(venue string) string {
	return strings.NewReplacer("/", "_", "\\", "_", " ", "_").Replace(venue)
}

var venueSuggestions = []string{
	"Pass --venue ICLR.cc/2025/Conference",
	"Pass --year 2025",
	"Set collection.venue in the config file",
}
