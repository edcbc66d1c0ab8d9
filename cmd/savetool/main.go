package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"robotodyssey.web/internal/engine"
	"robotodyssey.web/internal/savecodec"
	"robotodyssey.web/internal/savedata"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		usage(stderr)
		return 2
	}
	switch args[0] {
	case "classify":
		return classifyCmd(args[1:], stdout, stderr)
	case "encode":
		return encodeCmd(args[1:], stdout, stderr)
	case "decode":
		return decodeCmd(args[1:], stdout, stderr)
	default:
		usage(stderr)
		return 2
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: savetool classify <file>...")
	fmt.Fprintln(w, "       savetool encode [-pack] [-alphabet url|std] <file>")
	fmt.Fprintln(w, "       savetool decode [-unpack] -o <out> <token|url>")
}

func classifyCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("classify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(stderr, "missing file")
		return 2
	}
	now := time.Now()
	code := 0
	for _, path := range fs.Args() {
		b, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintln(stderr, "read:", err)
			code = 1
			continue
		}
		c := savedata.Classify(b)
		fmt.Fprintf(stdout, "%s: %s (%s, %s) -> %s\n", path, c.Label(), c.Kind, humanize.Bytes(uint64(len(b))), c.Filename(now))
	}
	return code
}

func encodeCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("encode", flag.ContinueOnError)
	fs.SetOutput(stderr)
	pack := fs.Bool("pack", false, "compress the save the way the engine packs autosaves")
	alphabet := fs.String("alphabet", "url", "token alphabet: url or std")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "expected exactly one file")
		return 2
	}
	codec, err := savecodec.ForAlphabet(*alphabet)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	b, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(stderr, "read:", err)
		return 1
	}
	if *pack {
		if b, err = engine.Pack(b); err != nil {
			fmt.Fprintln(stderr, "pack:", err)
			return 1
		}
	}
	fmt.Fprintln(stdout, codec.Encode(b))
	return 0
}

func decodeCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("decode", flag.ContinueOnError)
	fs.SetOutput(stderr)
	unpack := fs.Bool("unpack", false, "decompress a packed autosave token")
	out := fs.String("o", "", "output file (required)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 || strings.TrimSpace(*out) == "" {
		fmt.Fprintln(stderr, "usage: savetool decode [-unpack] -o <out> <token|url>")
		return 2
	}
	b, err := savecodec.URL.Decode(tokenOf(fs.Arg(0)))
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if *unpack {
		if b, err = engine.Unpack(b, 0); err != nil {
			fmt.Fprintln(stderr, "unpack:", err)
			return 1
		}
	}
	if err := os.WriteFile(*out, b, 0o644); err != nil {
		fmt.Fprintln(stderr, "write:", err)
		return 1
	}
	fmt.Fprintf(stdout, "%s: %s (%s)\n", *out, savedata.Classify(b).Label(), humanize.Bytes(uint64(len(b))))
	return 0
}

// tokenOf accepts a bare token, a "#token" fragment or a full page URL.
func tokenOf(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '#'); i >= 0 {
		return s[i+1:]
	}
	return s
}
