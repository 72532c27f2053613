package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/runvault/runvault/internal/storage"
	"github.com/runvault/runvault/pkg/bytesize"
)

var (
	storeDataDir string
	storeURIRoot string

	putMetaPairs []string
	putOverwrite bool

	metaSetPairs []string
	metaReplace  bool

	listWithoutTag string
	listLong       bool

	tagPayload string
)

// addStoreFlags registers the local-store flags shared by the object commands.
func addStoreFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&storeDataDir, "data-dir", "/var/lib/runvault", "store root directory")
	cmd.Flags().StringVar(&storeURIRoot, "uri-root", "/", "logical prefix stripped from object URIs")
}

// openStore opens the local store the object commands operate on.
func openStore() (*storage.Store, error) {
	dir, err := filepath.Abs(storeDataDir)
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}
	return storage.Open(dir, storeURIRoot)
}

func newPutCmd() *cobra.Command {
	putCmd := &cobra.Command{
		Use:   "put <uri> [file]",
		Short: "Store an object",
		Long: `Store an object in the local vault.

Data is read from the given file, or from stdin when the file is omitted
or given as "-".

Examples:
  runvault put /jobs/run-1/model model.json --meta round=3 --meta loss=0.17
  cat model.json | runvault put /jobs/run-1/model --overwrite`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runPut,
	}
	addStoreFlags(putCmd)
	putCmd.Flags().StringArrayVar(&putMetaPairs, "meta", nil, "metadata as key=value (repeatable)")
	putCmd.Flags().BoolVar(&putOverwrite, "overwrite", false, "replace the object if it already exists")
	return putCmd
}

func newGetCmd() *cobra.Command {
	getCmd := &cobra.Command{
		Use:   "get <uri> [file]",
		Short: "Fetch an object's data",
		Long: `Fetch an object's data from the local vault.

Data is written to the given file, or to stdout when the file is omitted
or given as "-".`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runGet,
	}
	addStoreFlags(getCmd)
	return getCmd
}

func newMetaCmd() *cobra.Command {
	metaCmd := &cobra.Command{
		Use:   "meta <uri>",
		Short: "Show or update an object's metadata",
		Long: `Show an object's metadata as JSON, or update it with --set.

Examples:
  runvault meta /jobs/run-1/model
  runvault meta /jobs/run-1/model --set round=4 --set status=done
  runvault meta /jobs/run-1/model --set round=4 --replace`,
		Args: cobra.ExactArgs(1),
		RunE: runMeta,
	}
	addStoreFlags(metaCmd)
	metaCmd.Flags().StringArrayVar(&metaSetPairs, "set", nil, "metadata to set as key=value (repeatable)")
	metaCmd.Flags().BoolVar(&metaReplace, "replace", false, "replace the metadata instead of merging")
	return metaCmd
}

func newDetailCmd() *cobra.Command {
	detailCmd := &cobra.Command{
		Use:   "detail <uri>",
		Short: "Show an object's metadata and size",
		Args:  cobra.ExactArgs(1),
		RunE:  runDetail,
	}
	addStoreFlags(detailCmd)
	return detailCmd
}

func newListCmd() *cobra.Command {
	listCmd := &cobra.Command{
		Use:     "list [dir-uri]",
		Aliases: []string{"ls"},
		Short:   "List objects and directories under a URI",
		Long: `List the objects and directories directly under a URI.

Directories print with a trailing slash. Objects carrying the tag named
by --without-tag are excluded.

Examples:
  runvault list /jobs
  runvault list /jobs/run-1 --long
  runvault list /jobs/run-1 --without-tag retired`,
		Args: cobra.MaximumNArgs(1),
		RunE: runList,
	}
	addStoreFlags(listCmd)
	listCmd.Flags().StringVar(&listWithoutTag, "without-tag", "", "exclude objects carrying this tag")
	listCmd.Flags().BoolVarP(&listLong, "long", "L", false, "show object sizes")
	return listCmd
}

func newRmCmd() *cobra.Command {
	rmCmd := &cobra.Command{
		Use:     "rm <uri>",
		Aliases: []string{"delete"},
		Short:   "Delete an object",
		Args:    cobra.ExactArgs(1),
		RunE:    runRm,
	}
	addStoreFlags(rmCmd)
	return rmCmd
}

func newTagCmd() *cobra.Command {
	tagCmd := &cobra.Command{
		Use:   "tag <uri> <tag>",
		Short: "Attach a tag marker to an object",
		Long: `Attach a named tag marker to an object.

Tags are advisory markers; listings can exclude tagged objects with
--without-tag.

Examples:
  runvault tag /jobs/run-1/model best
  runvault tag /jobs/run-1/model retired --payload "superseded by run-2"`,
		Args: cobra.ExactArgs(2),
		RunE: runTag,
	}
	addStoreFlags(tagCmd)
	tagCmd.Flags().StringVar(&tagPayload, "payload", "", "optional payload stored in the tag marker")
	return tagCmd
}

func runPut(cmd *cobra.Command, args []string) error {
	uri := args[0]
	if err := validateObjectURI(uri); err != nil {
		return err
	}

	meta, err := parseMetaPairs(putMetaPairs)
	if err != nil {
		return err
	}

	data, err := readInput(args)
	if err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}

	if _, err := store.CreateObject(cmd.Context(), uri, data, meta, putOverwrite); err != nil {
		return err
	}

	fmt.Printf("Stored %s (%s).\n", uri, bytesize.Format(int64(len(data))))
	return nil
}

// readInput reads object data from the optional file argument or stdin.
func readInput(args []string) ([]byte, error) {
	if len(args) > 1 && args[1] != "-" {
		data, err := os.ReadFile(args[1])
		if err != nil {
			return nil, fmt.Errorf("read input file: %w", err)
		}
		return data, nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	return data, nil
}

func runGet(cmd *cobra.Command, args []string) error {
	uri := args[0]
	if err := validateObjectURI(uri); err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}

	data, err := store.GetData(cmd.Context(), uri)
	if err != nil {
		return err
	}

	if len(args) > 1 && args[1] != "-" {
		if err := os.WriteFile(args[1], data, 0o644); err != nil {
			return fmt.Errorf("write output file: %w", err)
		}
		fmt.Printf("Wrote %s (%s).\n", args[1], bytesize.Format(int64(len(data))))
		return nil
	}

	_, err = os.Stdout.Write(data)
	return err
}

func runMeta(cmd *cobra.Command, args []string) error {
	uri := args[0]
	if err := validateObjectURI(uri); err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}

	if len(metaSetPairs) > 0 {
		meta, err := parseMetaPairs(metaSetPairs)
		if err != nil {
			return err
		}
		if err := store.UpdateMeta(cmd.Context(), uri, meta, metaReplace); err != nil {
			return err
		}
		fmt.Printf("Meta updated for %s.\n", uri)
		return nil
	}

	meta, err := store.GetMeta(cmd.Context(), uri)
	if err != nil {
		return err
	}
	return printJSON(meta)
}

func runDetail(cmd *cobra.Command, args []string) error {
	uri := args[0]
	if err := validateObjectURI(uri); err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}

	meta, data, err := store.GetDetail(cmd.Context(), uri)
	if err != nil {
		return err
	}

	fmt.Printf("URI:  %s\n", uri)
	fmt.Printf("Size: %s\n", bytesize.Format(int64(len(data))))
	fmt.Println("Meta:")
	return printJSON(meta)
}

func runList(cmd *cobra.Command, args []string) error {
	dirURI := "/"
	if len(args) > 0 {
		dirURI = args[0]
	}
	if err := validateObjectURI(dirURI); err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	objects, dirs, err := store.ListChildren(ctx, dirURI)
	if err != nil {
		return err
	}
	if listWithoutTag != "" {
		objects, err = store.ListObjects(ctx, dirURI, listWithoutTag)
		if err != nil {
			return err
		}
	}

	if len(objects) == 0 && len(dirs) == 0 {
		fmt.Println("No objects found.")
		return nil
	}

	if !listLong {
		for _, dir := range dirs {
			fmt.Printf("%s/\n", dir)
		}
		for _, obj := range objects {
			fmt.Println(obj)
		}
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "URI\tSIZE")
	for _, dir := range dirs {
		_, _ = fmt.Fprintf(w, "%s/\t-\n", dir)
	}
	for _, obj := range objects {
		size := "-"
		if n, err := store.ObjectSize(ctx, obj); err == nil {
			size = bytesize.Format(n)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\n", obj, size)
	}
	_ = w.Flush()

	return nil
}

func runRm(cmd *cobra.Command, args []string) error {
	uri := args[0]
	if err := validateObjectURI(uri); err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}

	if err := store.DeleteObject(cmd.Context(), uri); err != nil {
		return err
	}

	fmt.Printf("Deleted %s.\n", uri)
	return nil
}

func runTag(cmd *cobra.Command, args []string) error {
	uri, tag := args[0], args[1]
	if err := validateObjectURI(uri); err != nil {
		return err
	}
	if err := validateTagName(tag); err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}

	var payload []byte
	if tagPayload != "" {
		payload = []byte(tagPayload)
	}
	if err := store.TagObject(cmd.Context(), uri, tag, payload); err != nil {
		return err
	}

	fmt.Printf("Tagged %s with %q.\n", uri, tag)
	return nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
