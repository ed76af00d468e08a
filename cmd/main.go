// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type config struct {
	wantDOSHeader bool
	wantNTHeader  bool
	wantDataDirs  bool
	wantSections  bool
	wantExport    bool
	wantImport    bool
	wantResource  bool
	wantReloc     bool
	wantDebug     bool
	wantTLS       bool
	wantBoundImp  bool
	wantIAT       bool
	wantDelayImp  bool
}

func newDumpCommand() *cobra.Command {
	var cfg config

	cmd := &cobra.Command{
		Use:   "dump <path>",
		Short: "Dump the structure of a PE file or a directory of PE files",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			parse(args[0], cfg)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&cfg.wantDOSHeader, "dosheader", false, "Dump DOS header")
	flags.BoolVar(&cfg.wantNTHeader, "ntheader", false, "Dump NT header")
	flags.BoolVar(&cfg.wantDataDirs, "directories", false, "Accepted; data directories are not printed")
	flags.BoolVar(&cfg.wantSections, "sections", false, "Dump sections")
	flags.BoolVar(&cfg.wantExport, "export", false, "Accepted; the export table is not printed")
	flags.BoolVar(&cfg.wantImport, "import", false, "Dump import table")
	flags.BoolVar(&cfg.wantResource, "resource", false, "Dump resource table")
	flags.BoolVar(&cfg.wantReloc, "reloc", false, "Dump relocation table")
	flags.BoolVar(&cfg.wantDebug, "debug", false, "Dump debug infos")
	flags.BoolVar(&cfg.wantTLS, "tls", false, "Dump TLS")
	flags.BoolVar(&cfg.wantBoundImp, "bound", false, "Dump bound import table")
	flags.BoolVar(&cfg.wantIAT, "iat", false, "Accepted; the IAT is not printed")
	flags.BoolVar(&cfg.wantDelayImp, "delay", false, "Accepted; delay import descriptors are not printed")

	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("You are using version 1.3.0")
		},
	}
}

func main() {
	root := &cobra.Command{
		Use:   "peformat",
		Short: "A Portable Executable file parser",
		Long:  "A PE-Parser built for speed and malware-analysis in mind.",
	}

	root.AddCommand(newDumpCommand())
	root.AddCommand(newVersionCommand())

	if err := root.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
