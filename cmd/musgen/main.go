package main

import (
	"os"
	"reflect"
	"strings"

	musgen "github.com/mus-format/musgen-go/mus"
	genops "github.com/mus-format/musgen-go/options/generate"
	structops "github.com/mus-format/musgen-go/options/struct"
	typeops "github.com/mus-format/musgen-go/options/type"
	"github.com/poiesic/chainlab/core"
)

func main() {
	cwd, err := os.Getwd()
	if err != nil {
		panic(err)
	}
	// go generate runs from the core directory
	if strings.HasSuffix(cwd, "core") {
		if err := os.Chdir(".."); err != nil {
			panic(err)
		}
	}
	g, err := musgen.NewCodeGenerator(
		genops.WithPkgPath("github.com/poiesic/chainlab/core"),
	)
	if err != nil {
		panic(err)
	}

	g.AddDefinedType(reflect.TypeFor[core.ID]())

	// Unix micro timestamps
	micros := typeops.WithTimeUnit(typeops.Micro)
	err = g.AddStruct(reflect.TypeFor[core.Chunk](),
		structops.WithField(), // Id
		structops.WithField(), // Source
		structops.WithField(), // Index
		structops.WithField(), // Content
		structops.WithField(), // Vector
		structops.WithField(), // Metadata
		structops.WithField(micros))
	if err != nil {
		panic(err)
	}

	err = g.AddStruct(reflect.TypeFor[core.Manifest](),
		structops.WithField(),
		structops.WithField(),
		structops.WithField(),
		structops.WithField(micros),
		structops.WithField(micros))
	if err != nil {
		panic(err)
	}

	bs, err := g.Generate()
	if err != nil {
		panic(err)
	}

	if err := os.WriteFile("./core/records_mus.go", bs, 0644); err != nil {
		panic(err)
	}
}
