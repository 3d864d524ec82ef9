package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Sirherobrine23/phargo"
)

var (
	pharFilePath = flag.String("file", "", "File path")
	extractPath  = flag.String("extract", "", "Folder to extract files")
	createFrom   = flag.String("create", "", "Folder to pack into -file as a new phar")
	noVerify     = flag.Bool("no-verify", false, "Skip signature verification when reading")
)

func main() {
	flag.Parse()

	if *createFrom != "" {
		if err := create(*createFrom, *pharFilePath); err != nil {
			fmt.Fprintf(os.Stderr, "Cannot create archive: %s\n", err)
			os.Exit(1)
		}
		return
	}

	file, err := os.Open(*pharFilePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot open file: %s\n", err)
		os.Exit(1)
		return
	}
	defer file.Close()

	opts := phargo.DefaultOptions()
	opts.VerifySignature = !*noVerify
	reader, err := phargo.Open(file, opts, phargo.NewNameOrderedIndex())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot parse file: %s\n", err)
		os.Exit(1)
		return
	}

	if *extractPath == "" {
		meta, _ := reader.MetadataBytes()
		info := map[string]any{
			"num_files": reader.NumFiles,
			"signed":    reader.Signed,
			"metadata":  string(meta),
		}
		d, _ := json.MarshalIndent(info, "", "  ")
		fmt.Fprintf(os.Stdout, "%s\n", d)
		return
	}

	err = reader.ForEachFile(func(name []byte, content io.Reader) error {
		pathSave := filepath.Join(*extractPath, string(name))
		if baseDir := filepath.Dir(pathSave); baseDir != "." {
			if _, err := os.Stat(baseDir); err != nil {
				os.MkdirAll(baseDir, 0755)
			}
		}

		w, err := os.Create(pathSave)
		if err != nil {
			return fmt.Errorf("cannot create %s: %w", pathSave, err)
		}
		defer w.Close()

		if _, err := io.Copy(w, content); err != nil {
			return fmt.Errorf("cannot write to %s: %w", pathSave, err)
		}
		println(pathSave)
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot extract: %s\n", err)
		os.Exit(1)
	}
}

// create packs every regular file under dir into a new phar at outPath,
// uncompressed, signed with sha256.
func create(dir, outPath string) error {
	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()

	var paths []string
	err = filepath.Walk(dir, func(p string, fi os.FileInfo, err error) error {
		if err != nil || fi.IsDir() {
			return err
		}
		paths = append(paths, p)
		return nil
	})
	if err != nil {
		return err
	}

	needAlias, err := phargo.Create(out, phargo.SignatureSHA256).
		Stub([]byte("<?php __HALT_COMPILER(); ?>\r\n"))
	if err != nil {
		return err
	}
	needEntries, err := needAlias.Metadata(nil)
	if err != nil {
		return err
	}

	stage := needEntries
	for _, p := range paths {
		fi, err := os.Stat(p)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		stage, err = stage.Entry([]byte(filepath.ToSlash(rel)), fi.Mode(), fi.ModTime(), phargo.CompressionNone, 0, nil)
		if err != nil {
			return err
		}
	}

	contents, err := stage.Contents()
	if err != nil {
		return err
	}
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		contents, err = contents.Feed(f)
		f.Close()
		if err != nil {
			return err
		}
	}
	return nil
}
