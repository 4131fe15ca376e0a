// Copyright (c) 2025, NVIDIA CORPORATION.  All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package engine

import (
	"fmt"
	"io"
	"text/tabwriter"
)

// list renders the --list-plugins view: loaded plugins, skipped plugins
// with their reason, and every option with its resolved value.
func (e *Engine) list() {
	w := tabwriter.NewWriter(e.stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	if len(e.loaded) > 0 {
		fmt.Fprintln(w, "The following plugins are currently enabled:")
		fmt.Fprintln(w)
		for _, p := range e.loaded {
			fmt.Fprintf(w, " %s\t%s\n", p.Name(), p.Description())
		}
	} else {
		fmt.Fprintln(w, "No plugin enabled.")
	}
	fmt.Fprintln(w)

	if len(e.skipped) > 0 {
		fmt.Fprintln(w, "The following plugins are currently disabled:")
		fmt.Fprintln(w)
		for _, s := range e.skipped {
			desc := ""
			if p, ok := e.registry.Get(s.Name); ok {
				desc = p.Description()
			}
			fmt.Fprintf(w, " %s\t%s\t%s\n", s.Name, s.Reason, desc)
		}
		fmt.Fprintln(w)
	}

	e.listOptions(w)
}

func (e *Engine) listOptions(w io.Writer) {
	plugins := e.registry.Sorted()
	header := false
	for _, p := range plugins {
		values := p.Facade().OptionValues()
		for _, sp := range p.Options() {
			if !header {
				fmt.Fprintln(w, "The following plugin options are available:")
				fmt.Fprintln(w)
				header = true
			}
			v := values[sp.Key]
			fmt.Fprintf(w, " %s.%s\t%s\t%s\t%s\n", p.Name(), sp.Key, v.String(), sp.Speed, sp.Description)
		}
	}
	if !header {
		fmt.Fprintln(w, "No plugin options available.")
	}
}
