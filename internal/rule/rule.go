// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The filtermap Authors

// Package rule compiles configured filter-map rules over text records.
//
// A rule maps a record either to an output record or to a drop:
//
//   - expr: an expr-lang expression evaluated with 'line' (the record) and
//     'json' (the record parsed as JSON, or nil). A nil or false result drops
//     the record, true keeps it unchanged, strings are emitted as is and other
//     values are emitted as JSON.
//   - jsonpath: a gjson path. Records where the path does not exist are dropped.
//   - regexp: records not matching are dropped. The first capture group is
//     emitted, or the whole match if the pattern has no groups.
package rule

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/tidwall/gjson"

	"github.com/joamaki/filtermap/stream"
)

type Kind string

const (
	KindExpr     = Kind("expr")
	KindJSONPath = Kind("jsonpath")
	KindRegexp   = Kind("regexp")
)

type OnError string

const (
	// OnErrorFail closes the stream with the evaluation error.
	OnErrorFail = OnError("fail")

	// OnErrorDrop drops records that fail to evaluate.
	OnErrorDrop = OnError("drop")
)

var (
	ErrUnknownKind    = errors.New("unknown rule kind")
	ErrUnknownOnError = errors.New("unknown on_error mode")
	ErrEmptyRule      = errors.New("rule is empty")
	ErrInvalidJSON    = errors.New("record is not valid JSON")
)

type Config struct {
	Kind       Kind    `mapstructure:"kind"`
	Expression string  `mapstructure:"expression"`
	Path       string  `mapstructure:"path"`
	Pattern    string  `mapstructure:"pattern"`
	OnError    OnError `mapstructure:"on_error"`
}

// Rule is a compiled filter-map rule. It is safe for concurrent use.
type Rule struct {
	kind    Kind
	onError OnError
	apply   func(string) (stream.Result[string], error)
}

// Compile validates 'cfg' and compiles it into a Rule.
func Compile(cfg Config) (*Rule, error) {
	onError := cfg.OnError
	switch onError {
	case "":
		onError = OnErrorFail
	case OnErrorFail, OnErrorDrop:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOnError, cfg.OnError)
	}

	var (
		apply func(string) (stream.Result[string], error)
		err   error
	)
	switch cfg.Kind {
	case KindExpr:
		apply, err = compileExpr(cfg.Expression)
	case KindJSONPath:
		apply, err = compileJSONPath(cfg.Path)
	case KindRegexp:
		apply, err = compileRegexp(cfg.Pattern)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("compile %s rule: %w", cfg.Kind, err)
	}
	return &Rule{kind: cfg.Kind, onError: onError, apply: apply}, nil
}

func (r *Rule) Kind() Kind { return r.kind }

// DropOnError is true if records failing evaluation should be dropped
// instead of failing the stream.
func (r *Rule) DropOnError() bool { return r.onError == OnErrorDrop }

// Apply evaluates the rule against a record.
func (r *Rule) Apply(record string) (stream.Result[string], error) {
	res, err := r.apply(record)
	if err != nil {
		return stream.Drop[string](), fmt.Errorf("evaluate %s rule: %w", r.kind, err)
	}
	return res, nil
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func compileExpr(expression string) (func(string) (stream.Result[string], error), error) {
	if isBlank(expression) {
		return nil, ErrEmptyRule
	}
	program, err := expr.Compile(expression, expr.Env(exprEnv{}))
	if err != nil {
		return nil, err
	}
	return func(record string) (stream.Result[string], error) {
		return runExpr(program, record)
	}, nil
}

// exprEnv is the environment expressions are evaluated in.
type exprEnv struct {
	Line string `expr:"line"`
	JSON any    `expr:"json"`
}

func runExpr(program *vm.Program, record string) (stream.Result[string], error) {
	env := exprEnv{Line: record}
	if gjson.Valid(record) {
		env.JSON = gjson.Parse(record).Value()
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return stream.Drop[string](), err
	}

	switch v := out.(type) {
	case nil:
		return stream.Drop[string](), nil
	case bool:
		if v {
			return stream.Keep(record), nil
		}
		return stream.Drop[string](), nil
	case string:
		return stream.Keep(v), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return stream.Drop[string](), err
		}
		return stream.Keep(string(b)), nil
	}
}

func compileJSONPath(path string) (func(string) (stream.Result[string], error), error) {
	if isBlank(path) {
		return nil, ErrEmptyRule
	}
	return func(record string) (stream.Result[string], error) {
		if !gjson.Valid(record) {
			return stream.Drop[string](), ErrInvalidJSON
		}
		res := gjson.Get(record, path)
		if !res.Exists() {
			return stream.Drop[string](), nil
		}
		return stream.Keep(res.String()), nil
	}, nil
}

func compileRegexp(pattern string) (func(string) (stream.Result[string], error), error) {
	if pattern == "" {
		return nil, ErrEmptyRule
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	return func(record string) (stream.Result[string], error) {
		m := re.FindStringSubmatch(record)
		switch {
		case m == nil:
			return stream.Drop[string](), nil
		case len(m) > 1:
			return stream.Keep(m[1]), nil
		default:
			return stream.Keep(m[0]), nil
		}
	}, nil
}
