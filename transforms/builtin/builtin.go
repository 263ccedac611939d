// Package builtin registers every bundled transform with the registry.
package builtin

import (
	_ "github.com/nemanja-m/gotransform/transforms/dedup"
	_ "github.com/nemanja-m/gotransform/transforms/docid"
	_ "github.com/nemanja-m/gotransform/transforms/docquality"
	_ "github.com/nemanja-m/gotransform/transforms/filter"
	_ "github.com/nemanja-m/gotransform/transforms/noop"
	_ "github.com/nemanja-m/gotransform/transforms/normalize"
	_ "github.com/nemanja-m/gotransform/transforms/resize"
)
