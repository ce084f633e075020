// Command redirects patches the kernel image so that selected Go runtime
// functions jump to kernel replacements. Functions opt in with a
//
//	//go:redirect-from runtime.symbol
//
// comment. The "count" command prints the number of redirects (used to size
// the .goredirectstbl section) and "populate-table" fills that section with
// (source, destination) address pairs.
package main

import (
	"debug/elf"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/mod/modfile"
)

const (
	redirectDirective = "//go:redirect-from"
	tableSection      = ".goredirectstbl"
)

type redirect struct {
	src string
	dst string

	srcVMA uint64
	dstVMA uint64
}

func exit(err error) {
	fmt.Fprintf(os.Stderr, "[redirects] error: %s\n", err.Error())
	os.Exit(1)
}

// modulePath returns the module path declared by the go.mod file in root.
func modulePath(root string) (string, error) {
	gomod := filepath.Join(root, "go.mod")
	data, err := os.ReadFile(gomod)
	if err != nil {
		return "", err
	}

	f, err := modfile.ParseLax(gomod, data, nil)
	if err != nil {
		return "", err
	}
	if f.Module == nil || f.Module.Mod.Path == "" {
		return "", fmt.Errorf("%s: missing module directive", gomod)
	}
	return f.Module.Mod.Path, nil
}

// collectGoFiles returns the non-test Go files below dir, relative to root.
func collectGoFiles(root, dir string) ([]string, error) {
	var goFiles []string
	err := filepath.WalkDir(filepath.Join(root, dir), func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		if filepath.Ext(p) == ".go" && !strings.HasSuffix(p, "_test.go") {
			rel, err := filepath.Rel(root, p)
			if err != nil {
				return err
			}
			goFiles = append(goFiles, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(goFiles)
	return goFiles, nil
}

// findRedirects parses goFiles (relative to root) and returns the redirects
// declared by their function comments. Destination names are the linker
// symbols of the annotated functions.
func findRedirects(root, modPath string, goFiles []string) ([]*redirect, error) {
	var redirects []*redirect

	for _, goFile := range goFiles {
		fset := token.NewFileSet()
		f, err := parser.ParseFile(fset, filepath.Join(root, goFile), nil, parser.ParseComments)
		if err != nil {
			return nil, err
		}

		for _, decl := range f.Decls {
			fnDecl, ok := decl.(*ast.FuncDecl)
			if !ok || fnDecl.Doc == nil || fnDecl.Recv != nil {
				continue
			}

			for _, comment := range fnDecl.Doc.List {
				if !strings.HasPrefix(comment.Text, redirectDirective) {
					continue
				}

				pkgPath := path.Join(modPath, filepath.ToSlash(filepath.Dir(goFile)))
				fqName := pkgPath + "." + fnDecl.Name.Name

				fields := strings.Fields(comment.Text)
				if len(fields) != 2 || fields[0] != redirectDirective {
					return nil, fmt.Errorf("%s: malformed go:redirect-from syntax for %q", goFile, fqName)
				}

				redirects = append(redirects, &redirect{src: fields[1], dst: fqName})
			}
		}
	}

	return redirects, nil
}

func resolveRedirectSymbols(redirects []*redirect, f *elf.File) error {
	symbols, err := f.Symbols()
	if err != nil {
		return err
	}

	addr := make(map[string]uint64, len(symbols))
	for _, symbol := range symbols {
		addr[symbol.Name] = symbol.Value
	}

	for _, r := range redirects {
		r.srcVMA, r.dstVMA = addr[r.src], addr[r.dst]
		switch {
		case r.srcVMA == 0:
			return fmt.Errorf("could not locate address of %q", r.src)
		case r.dstVMA == 0:
			return fmt.Errorf("could not locate address of %q", r.dst)
		}
	}

	return nil
}

// encodeTable serializes the redirects as little-endian (src, dst) pairs.
func encodeTable(redirects []*redirect) []byte {
	buf := make([]byte, 0, 16*len(redirects))
	for _, r := range redirects {
		buf = binary.LittleEndian.AppendUint64(buf, r.srcVMA)
		buf = binary.LittleEndian.AppendUint64(buf, r.dstVMA)
	}
	return buf
}

func populateTable(redirects []*redirect, imgFile string) error {
	f, err := elf.Open(imgFile)
	if err != nil {
		return err
	}
	defer f.Close()

	section := f.Section(tableSection)
	if section == nil {
		return fmt.Errorf("%s: missing %s section", imgFile, tableSection)
	}

	if err = resolveRedirectSymbols(redirects, f); err != nil {
		return fmt.Errorf("%s: %w", imgFile, err)
	}

	table := encodeTable(redirects)
	if uint64(len(table)) > section.Size {
		return fmt.Errorf("%s: %d redirects do not fit in %s (%d bytes)", imgFile, len(redirects), tableSection, section.Size)
	}

	out, err := os.OpenFile(imgFile, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = out.WriteAt(table, int64(section.Offset))
	return err
}

func main() {
	root := flag.String("root", ".", "kernel source root containing go.mod")
	flag.Parse()

	if len(flag.Args()) == 0 {
		exit(errors.New("missing command"))
	}

	cmd := flag.Arg(0)
	var imgFile string
	switch cmd {
	case "count":
	case "populate-table":
		if len(flag.Args()) != 2 {
			exit(errors.New("populate-table requires the path to the kernel image as an argument"))
		}
		imgFile = flag.Arg(1)
	default:
		exit(fmt.Errorf("unknown command %q", cmd))
	}

	modPath, err := modulePath(*root)
	if err != nil {
		exit(err)
	}

	goFiles, err := collectGoFiles(*root, "kernel")
	if err != nil {
		exit(err)
	}

	redirects, err := findRedirects(*root, modPath, goFiles)
	if err != nil {
		exit(err)
	}

	if cmd == "count" {
		fmt.Printf("%d", len(redirects))
		return
	}

	if err = populateTable(redirects, imgFile); err != nil {
		exit(err)
	}
}
