// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"text/template"

	"github.com/urfave/cli/v2"

	"github.com/gardener/housekeeping/pkg/core/registry"
)

// errNoQueryTemplate is an error which is returned by the query sub-command,
// when an expected [text/template] body was not specified.
var errNoQueryTemplate = errors.New("no query template specified")

// NewModelCommand returns a new command for interfacing with the models.
func NewModelCommand() *cli.Command {
	cmd := &cli.Command{
		Name:    "model",
		Usage:   "model operations",
		Aliases: []string{"m"},
		Subcommands: []*cli.Command{
			{
				Name:    "list",
				Usage:   "list registered models",
				Aliases: []string{"ls"},
				Action: func(_ *cli.Context) error {
					for _, name := range registry.ModelRegistry.Keys() {
						fmt.Println(name)
					}

					return nil
				},
			},
			{
				Name:    "query",
				Usage:   "query data for a given model",
				Aliases: []string{"q"},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "model",
						Usage:    "model name to query",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "template",
						Usage: "template body to render",
					},
					&cli.StringFlag{
						Name:  "where",
						Usage: "optional filter condition, e.g. status = 'FAILED'",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "fetch up to this number of records",
						Value: 0,
					},
					&cli.IntFlag{
						Name:  "offset",
						Usage: "fetch records starting from this offset",
						Value: 0,
					},
				},
				Before: func(ctx *cli.Context) error {
					return validateDBConfig(getConfig(ctx))
				},
				Action: func(ctx *cli.Context) error {
					templateBody := ctx.String("template")
					if templateBody == "" {
						return errNoQueryTemplate
					}

					tmpl, err := template.New("housekeeping").Parse(templateBody)
					if err != nil {
						return err
					}

					modelName := ctx.String("model")
					model, ok := registry.ModelRegistry.Get(modelName)
					if !ok {
						return fmt.Errorf("model %q not found in registry", modelName)
					}

					offset := ctx.Int("offset")
					limit := ctx.Int("limit")
					if offset < 0 || limit < 0 {
						return fmt.Errorf("invalid offset %d or limit %d", offset, limit)
					}

					conf := getConfig(ctx)
					db := newDB(conf)
					defer db.Close() // nolint: errcheck

					// A slice of the registered model type receives the
					// query result, which is then passed to the template.
					modelType := reflect.TypeOf(model).Elem()
					items := reflect.New(reflect.SliceOf(modelType))
					items.Elem().Set(reflect.MakeSlice(reflect.SliceOf(modelType), 0, 0))

					query := db.NewSelect().
						Model(items.Interface()).
						Offset(offset).
						Order("id ASC")

					if limit > 0 {
						query = query.Limit(limit)
					}

					if where := ctx.String("where"); where != "" {
						query = query.Where(where)
					}

					if err := query.Scan(ctx.Context); err != nil {
						return err
					}

					return tmpl.Execute(os.Stdout, items.Interface())
				},
			},
		},
	}

	return cmd
}
