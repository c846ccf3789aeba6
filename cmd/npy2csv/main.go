package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/gonum/matrix/mat64"

	"github.com/HagaiHargil/caflow/internal/io"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: npy2csv <file.npy | file.npz member>")
		os.Exit(1)
	}
	fileName := os.Args[1]

	matrix, err := load(fileName, os.Args[2:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println("Reading complete")

	if err := io.Mat64toCSV(fileName+".csv", matrix); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println("Wrote " + fileName + ".csv")

	return
}

func load(fileName string, rest []string) (*mat64.Dense, error) {
	if !strings.HasSuffix(fileName, ".npz") {
		return io.NpytoMat64(fileName)
	}

	npz, err := io.OpenNpz(fileName)
	if err != nil {
		return nil, err
	}
	defer npz.Close()

	if len(rest) != 1 {
		return nil, fmt.Errorf("npz files need a member name, have: %s", strings.Join(npz.Keys(), ", "))
	}

	return npz.Mat64(rest[0])
}
