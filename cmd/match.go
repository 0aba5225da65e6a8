package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"text/tabwriter"

	"github.com/facebuddy/facebuddy/internal/config"
	"github.com/facebuddy/facebuddy/internal/constants"
	"github.com/facebuddy/facebuddy/internal/detector"
	"github.com/facebuddy/facebuddy/internal/facematch"
	"github.com/facebuddy/facebuddy/internal/gallery"
	"github.com/spf13/cobra"
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Resolve the largest known face offline",
	Long: `Match detections against a gallery snapshot without starting the server.

The gallery file uses the snapshot format ([{label, descriptor}]). Faces come
either from a detections file ([{box, embedding}]) or from an image sent to
the embedding server at EMBEDDING_URL.

Examples:
  # Resolve precomputed detections
  facebuddy match --gallery gallery.json --detections frame.json

  # Detect faces in a photo first
  facebuddy match --gallery gallery.json --image frame.jpg

  # Stricter matching, machine readable output
  facebuddy match --gallery gallery.json --detections frame.json --threshold 0.45 --json`,
	RunE: runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().String("gallery", "", "Gallery snapshot file (required)")
	matchCmd.Flags().String("detections", "", "Detections JSON file")
	matchCmd.Flags().String("image", "", "Image file to run through the face detector")
	matchCmd.Flags().Float64("threshold", 0, "Maximum Euclidean distance for a match (0 = default 0.6)")
	matchCmd.Flags().Bool("json", false, "Output as JSON")
	_ = matchCmd.MarkFlagRequired("gallery")
}

// MatchOutput is the JSON output of the match command.
type MatchOutput struct {
	Gallery    int                     `json:"gallery_names"`
	Skipped    int                     `json:"skipped_entries"`
	Detections []facematch.Match       `json:"detections"`
	Resolved   *facematch.ResolvedFace `json:"resolved,omitempty"`
	Error      string                  `json:"error,omitempty"`
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// loadDetections reads detections from a file or detects them in an image.
func loadDetections(ctx context.Context, detectionsPath, imagePath string) ([]facematch.Detection, error) {
	switch {
	case detectionsPath != "" && imagePath != "":
		return nil, errors.New("use either --detections or --image, not both")
	case detectionsPath != "":
		var dets []facematch.Detection
		if err := readJSONFile(detectionsPath, &dets); err != nil {
			return nil, err
		}
		return dets, nil
	case imagePath != "":
		data, err := os.ReadFile(imagePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", imagePath, err)
		}
		cfg := config.Load()
		return detector.New(cfg.Embedding.URL).Detect(ctx, data)
	default:
		return nil, errors.New("one of --detections or --image is required")
	}
}

func runMatch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	galleryData, err := os.ReadFile(mustGetString(cmd, "gallery"))
	if err != nil {
		return fmt.Errorf("failed to read gallery: %w", err)
	}
	saved, err := gallery.DecodeSnapshot(galleryData)
	if err != nil {
		return err
	}

	dets, err := loadDetections(ctx, mustGetString(cmd, "detections"), mustGetString(cmd, "image"))
	if err != nil {
		return err
	}

	threshold := mustGetFloat64(cmd, "threshold")
	if threshold <= 0 {
		threshold = -1
	}

	g := facematch.BuildGallery(saved)
	profiles := facematch.ProfilesByName(saved)

	out := MatchOutput{Gallery: g.Len(), Skipped: g.Skipped()}
	for _, d := range dets {
		if threshold < 0 {
			out.Detections = append(out.Detections, g.Match(d.Embedding))
		} else {
			out.Detections = append(out.Detections, g.MatchWithThreshold(d.Embedding, threshold))
		}
	}
	out.Resolved, err = facematch.Resolve(dets, g, profiles, threshold)
	switch {
	case errors.Is(err, facematch.ErrNoRecognizedFace):
		out.Error = constants.NoFacesMessage
	case err != nil:
		out.Error = err.Error()
	}

	if mustGetBool(cmd, "json") {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(out)
	}

	printMatchOutput(out, dets)
	return nil
}

func printMatchOutput(out MatchOutput, dets []facematch.Detection) {
	fmt.Printf("Gallery: %d names", out.Gallery)
	if out.Skipped > 0 {
		fmt.Printf(" (%d entries skipped)", out.Skipped)
	}
	fmt.Printf("\n\n")

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tLABEL\tDISTANCE\tAREA")
	for i, m := range out.Detections {
		distance := "-"
		if m.Distance != math.MaxFloat64 {
			distance = fmt.Sprintf("%.4f", m.Distance)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%.0f\n", i, m.Label, distance, dets[i].Box.Area())
	}
	w.Flush()
	fmt.Println()

	if out.Resolved == nil {
		fmt.Println(out.Error)
		return
	}
	p := out.Resolved.Profile
	fmt.Printf("Resolved: %s (detection %d, distance %.4f)\n", p.Name, out.Resolved.Index, out.Resolved.Match.Distance)
	for _, social := range []struct{ name, handle string }{
		{"LinkedIn", p.LinkedIn},
		{"Telegram", p.Telegram},
		{"Twitter", p.Twitter},
	} {
		if social.handle != "" {
			fmt.Printf("  %s: %s\n", social.name, social.handle)
		}
	}
}
