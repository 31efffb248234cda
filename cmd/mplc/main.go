package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/mpl-lang/mplc/internal/compiler"
	"github.com/mpl-lang/mplc/internal/config"
	"github.com/mpl-lang/mplc/internal/dict"
	"github.com/mpl-lang/mplc/internal/smf"
	"github.com/pkg/errors"
)

func main() {
	var (
		outPath    = flag.String("out", "", "output SMF path (default: stdout)")
		configPath = flag.String("config", "", "path to a YAML config override")
		dictPath   = flag.String("dict", "", "path to a YAML dictionary override")
	)
	flag.Parse()

	if flag.NArg() < 1 {
		log.Fatal("usage: mplc [-out path] [-config path] [-dict path] <source.mpl>")
	}
	srcPath := flag.Arg(0)

	cfg, err := resolveConfig(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	d, err := resolveDict(*dictPath)
	if err != nil {
		log.Fatal(err)
	}

	src, err := os.ReadFile(srcPath)
	if err != nil {
		log.Fatal(err)
	}

	result, err := compiler.Compile(srcPath, string(src), cfg, d, loadFile)
	if err != nil {
		log.Fatal(err)
	}
	for _, w := range result.Warnings {
		fmt.Fprintln(os.Stderr, w.String())
	}

	bytes := smf.Write(result.Sequence)
	if err := writeOutput(*outPath, bytes); err != nil {
		log.Fatal(err)
	}
}

func resolveConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func resolveDict(path string) (*dict.Dict, error) {
	if path == "" {
		return dict.Default(), nil
	}
	return dict.Load(path)
}

// loadFile implements compiler.Loader by reading from the local
// filesystem, wrapped with a stack-bearing cause so INCLUDE failures
// never silently drop their OS-level error.
func loadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrap(err, "reading include file")
	}
	return string(data), nil
}

func writeOutput(path string, data []byte) error {
	if path == "" {
		_, err := os.Stdout.Write(data)
		return errors.Wrap(err, "writing SMF to stdout")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, "writing SMF to "+path)
	}
	return nil
}
