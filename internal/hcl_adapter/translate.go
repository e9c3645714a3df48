package hcl_adapter

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/specialistvlad/taskgrid/internal/config"
)

func translateTask(evalCtx *hcl.EvalContext, tb *taskBlock) (*config.TaskDefinition, error) {
	def := &config.TaskDefinition{
		Name:      tb.Name,
		Inputs:    tb.Inputs,
		Outputs:   tb.Outputs,
		DependsOn: tb.DependsOn,
		Clean:     true,
		DeclRange: formatRange(tb.DeclRange),
	}
	if tb.Description != nil {
		def.Description = *tb.Description
	}
	if tb.Cacheable != nil {
		def.Cacheable = *tb.Cacheable
	}
	if tb.Clean != nil {
		def.Clean = *tb.Clean
	}
	if tb.Action == nil {
		return def, nil
	}

	action, err := translateAction(evalCtx, tb.Action)
	if err != nil {
		return nil, fmt.Errorf("%s: task '%s': %w", def.DeclRange, tb.Name, err)
	}
	def.Action = action
	return def, nil
}

func translateAction(evalCtx *hcl.EvalContext, ab *actionBlock) (*config.ActionDefinition, error) {
	def := &config.ActionDefinition{Kind: ab.Kind}

	switch ab.Kind {
	case config.ActionCommand:
		var body commandBody
		if diags := gohcl.DecodeBody(ab.Body, evalCtx, &body); diags.HasErrors() {
			return nil, diags
		}
		def.Commands = body.Run
		def.Env = body.Env
		if body.Dir != nil {
			def.Dir = *body.Dir
		}

	case config.ActionRender:
		var body renderBody
		if diags := gohcl.DecodeBody(ab.Body, evalCtx, &body); diags.HasErrors() {
			return nil, diags
		}
		def.Engine = body.Engine
		def.Source = body.Source
		def.Args = body.Args
		if body.Format != nil {
			def.Format = *body.Format
		}
		if body.OutputDir != nil {
			def.OutputDir = *body.OutputDir
		}

	case config.ActionCall:
		content, remain, diags := ab.Body.PartialContent(callSchema)
		if diags.HasErrors() {
			return nil, diags
		}
		var function string
		if diags := gohcl.DecodeExpression(content.Attributes["function"].Expr, evalCtx, &function); diags.HasErrors() {
			return nil, diags
		}
		def.Function = function
		def.DecodeInput = func(target any) error {
			if diags := gohcl.DecodeBody(remain, evalCtx, target); diags.HasErrors() {
				return diags
			}
			return nil
		}

	default:
		return nil, fmt.Errorf("unknown action kind '%s', expected one of %s, %s or %s",
			ab.Kind, config.ActionCommand, config.ActionCall, config.ActionRender)
	}
	return def, nil
}
