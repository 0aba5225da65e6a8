package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/facebuddy/facebuddy/internal/blobstore"
	"github.com/facebuddy/facebuddy/internal/config"
	"github.com/facebuddy/facebuddy/internal/database"
	"github.com/facebuddy/facebuddy/internal/facematch"
	"github.com/facebuddy/facebuddy/internal/gallery"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

// importBatchSize is how many faces go to the database per insert.
const importBatchSize = 100

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "Manage the face gallery",
}

var galleryImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Load a gallery snapshot into the database",
	Long: `Load a gallery snapshot into the database at DATABASE_URL.

The snapshot comes from a published blob or from a local file in the
snapshot format ([{label, descriptor}]). Existing faces are kept; imported
faces are appended and their profiles replace stored ones.

Examples:
  facebuddy gallery import --blob 8Wq3...
  facebuddy gallery import --file gallery.json`,
	RunE: runGalleryImport,
}

var galleryExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the stored gallery as a snapshot",
	Long: `Write the gallery stored at DATABASE_URL in the snapshot format.

Examples:
  facebuddy gallery export --out gallery.json
  facebuddy gallery export --publish`,
	RunE: runGalleryExport,
}

var galleryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered names",
	RunE:  runGalleryList,
}

func init() {
	rootCmd.AddCommand(galleryCmd)
	galleryCmd.AddCommand(galleryImportCmd)
	galleryCmd.AddCommand(galleryExportCmd)
	galleryCmd.AddCommand(galleryListCmd)

	galleryImportCmd.Flags().String("blob", "", "Blob ID of a published snapshot")
	galleryImportCmd.Flags().String("file", "", "Local snapshot file")

	galleryExportCmd.Flags().String("out", "", "Output file (default stdout)")
	galleryExportCmd.Flags().Bool("publish", false, "Also publish the snapshot to the blob store")
}

// openGalleryStore opens DATABASE_URL, which the gallery commands require.
func openGalleryStore(cfg *config.Config) (database.Backend, error) {
	store, err := database.Open(&cfg.Database)
	if errors.Is(err, database.ErrNoDatabase) {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open gallery database: %w", err)
	}
	return store, nil
}

func walrusFromConfig(cfg *config.Config) *blobstore.Walrus {
	return blobstore.NewWalrus(cfg.Walrus.PublisherURL, cfg.Walrus.AggregatorURL, cfg.Walrus.Epochs, cfg.Walrus.Enabled)
}

// readSnapshot loads a snapshot from a blob or a file. It returns the faces
// and the source recorded with them.
func readSnapshot(ctx context.Context, cfg *config.Config, blobID, file string) ([]facematch.SavedFace, string, error) {
	var (
		data   []byte
		source string
		err    error
	)
	switch {
	case blobID != "" && file != "":
		return nil, "", errors.New("use either --blob or --file, not both")
	case blobID != "":
		fmt.Printf("Fetching snapshot %s...\n", blobID)
		data, err = walrusFromConfig(cfg).Get(ctx, blobID)
		source = database.SourceBlob
	case file != "":
		data, err = os.ReadFile(file)
		source = database.SourceImport
	default:
		return nil, "", errors.New("one of --blob or --file is required")
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to read snapshot: %w", err)
	}

	saved, err := gallery.DecodeSnapshot(data)
	if err != nil {
		return nil, "", err
	}
	return saved, source, nil
}

func runGalleryImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := config.Load()

	saved, source, err := readSnapshot(ctx, cfg, mustGetString(cmd, "blob"), mustGetString(cmd, "file"))
	if err != nil {
		return err
	}

	store, err := openGalleryStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	faces := make([]database.StoredFace, 0, len(saved))
	for _, sf := range saved {
		if _, ok := facematch.CleanName(sf.Label.Name); !ok || len(sf.Descriptor) == 0 {
			continue
		}
		faces = append(faces, database.FromSavedFace(sf, source))
	}
	if skipped := len(saved) - len(faces); skipped > 0 {
		fmt.Printf("Skipping %d entries without a usable name or descriptor\n", skipped)
	}
	if len(faces) == 0 {
		fmt.Println("Nothing to import")
		return nil
	}

	bar := progressbar.NewOptions(len(faces),
		progressbar.OptionSetDescription("Importing faces"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("faces"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)

	imported := 0
	for start := 0; start < len(faces); start += importBatchSize {
		end := min(start+importBatchSize, len(faces))
		n, err := store.AddFaces(ctx, faces[start:end])
		imported += n
		if err != nil {
			fmt.Println()
			return fmt.Errorf("import stopped after %d faces: %w", imported, err)
		}
		_ = bar.Add(end - start)
	}
	fmt.Println()

	total, err := store.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Imported %d faces into %s (%d stored)\n", imported, store.Name(), total)
	return nil
}

func runGalleryExport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := config.Load()

	store, err := openGalleryStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	svc := gallery.NewService(store, gallery.WithBlobStore(walrusFromConfig(cfg)))
	if err := svc.Load(ctx); err != nil {
		return err
	}

	data, err := gallery.EncodeSnapshot(svc.Export())
	if err != nil {
		return err
	}

	if out := mustGetString(cmd, "out"); out != "" {
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", out, err)
		}
		fmt.Fprintf(os.Stderr, "Wrote %d faces to %s\n", len(svc.Export()), out)
	} else if !mustGetBool(cmd, "publish") {
		os.Stdout.Write(data)
		fmt.Println()
	}

	if mustGetBool(cmd, "publish") {
		blobID, err := svc.Publish(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Published snapshot: %s\n", blobID)
	}
	return nil
}

func runGalleryList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := config.Load()

	store, err := openGalleryStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	svc := gallery.NewService(store)
	if err := svc.Load(ctx); err != nil {
		return err
	}

	names := svc.Summary()
	if len(names) == 0 {
		fmt.Println("No faces registered")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tEMBEDDINGS")
	for _, n := range names {
		fmt.Fprintf(w, "%s\t%d\n", n.Name, n.Embeddings)
	}
	w.Flush()

	if snap, err := store.LatestSnapshot(ctx); err == nil && snap != nil {
		fmt.Printf("\nLast snapshot: %s (%d faces, %s)\n", snap.BlobID, snap.FaceCount, snap.CreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}
