// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/ShiftSim/pkg/taxsim"
	"github.com/AleutianAI/ShiftSim/pkg/ux"
)

func runTranslate(cmd *cobra.Command, args []string) error {
	var in io.Reader = os.Stdin
	if len(args) > 0 && args[0] != "-" {
		f, err := os.Open(expandHome(args[0]))
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	var out io.Writer = os.Stdout
	var outFile *os.File
	if len(args) > 1 {
		f, err := os.Create(expandHome(args[1]))
		if err != nil {
			return err
		}
		outFile = f
		out = f
	}

	if err := taxsim.Translate(in, out); err != nil {
		if outFile != nil {
			_ = outFile.Close()
		}
		return err
	}

	if outFile != nil {
		if err := outFile.Close(); err != nil {
			return fmt.Errorf("close %s: %w", args[1], err)
		}
		if ux.GetMode() == ux.ModeRich {
			ux.Success("wrote " + args[1])
		}
	}
	return nil
}
