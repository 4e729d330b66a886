package scanner

import (
	"strings"
	"testing"
)

func findArtifact(t *testing.T, arts []RawArtifact, kind, name string) RawArtifact {
	t.Helper()
	for _, a := range arts {
		if a.Kind == kind && a.Name == name {
			return a
		}
	}
	var have []string
	for _, a := range arts {
		have = append(have, a.Kind+"/"+a.Name)
	}
	t.Fatalf("No %s artifact named %q, have %v", kind, name, have)
	return RawArtifact{}
}

func hasRef(a RawArtifact, kind, target string) bool {
	for _, r := range a.Refs {
		if r.Kind == kind && r.Target == target {
			return true
		}
	}
	return false
}

func TestTypeScriptParser(t *testing.T) {
	src := `import { Router } from "./http/router";
import express from "express";
import "./styles.css";

export default class ApiServer extends BaseServer implements Startable, Stoppable {
}

export interface Startable extends Lifecycle {
}

export type Config = Record<string, string>;

export async function bootstrap(cfg: Config) {}

export const handler = (req) => respond(req);
export const VERSION = "1.2.3";
`
	arts, err := typescriptParser{}.Parse("src/server.ts", []byte(src))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	file := findArtifact(t, arts, KindFile, "server")
	if file.FilePath != "src/server.ts" {
		t.Errorf("File path = %q", file.FilePath)
	}
	for _, target := range []string{"router", "express", "styles"} {
		if !hasRef(file, "imports", target) {
			t.Errorf("Missing import ref %q, refs: %v", target, file.Refs)
		}
	}

	class := findArtifact(t, arts, KindClass, "ApiServer")
	if class.Line != 5 {
		t.Errorf("Class line = %d, want 5", class.Line)
	}
	if class.Meta["extends"] != "BaseServer" {
		t.Errorf("Class extends = %v", class.Meta["extends"])
	}
	if !hasRef(class, "extends", "BaseServer") || !hasRef(class, "implements", "Startable") || !hasRef(class, "implements", "Stoppable") {
		t.Errorf("Class refs incomplete: %v", class.Refs)
	}

	iface := findArtifact(t, arts, KindInterface, "Startable")
	if !hasRef(iface, "extends", "Lifecycle") {
		t.Errorf("Interface refs incomplete: %v", iface.Refs)
	}

	findArtifact(t, arts, KindType, "Config")
	findArtifact(t, arts, KindFunction, "bootstrap")
	findArtifact(t, arts, KindFunction, "handler")
	findArtifact(t, arts, KindExport, "VERSION")
}

func TestPythonParser(t *testing.T) {
	src := `import os
from fastapi import FastAPI

@app.route
@cached
def get_users():
    return db.query()

class UserService(BaseService, LoggerMixin, metaclass=ABCMeta):
    def helper(self):
        pass

def main():
    pass
`
	arts, err := pythonParser{}.Parse("svc/api.py", []byte(src))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	file := findArtifact(t, arts, KindFile, "api")
	if !hasRef(file, "imports", "os") || !hasRef(file, "imports", "fastapi") {
		t.Errorf("Import refs incomplete: %v", file.Refs)
	}

	fn := findArtifact(t, arts, KindFunction, "get_users")
	decorators, _ := fn.Meta["decorators"].([]string)
	if len(decorators) != 2 || decorators[0] != "app.route" || decorators[1] != "cached" {
		t.Errorf("Decorators = %v", fn.Meta["decorators"])
	}

	class := findArtifact(t, arts, KindClass, "UserService")
	if !hasRef(class, "extends", "BaseService") || !hasRef(class, "extends", "LoggerMixin") {
		t.Errorf("Class bases incomplete: %v", class.Refs)
	}
	if hasRef(class, "extends", "metaclass=ABCMeta") {
		t.Error("Keyword base leaked into extends refs")
	}
	if _, ok := class.Meta["decorators"]; ok {
		t.Error("Decorators bled across the preceding def")
	}

	main := findArtifact(t, arts, KindFunction, "main")
	if main.Meta != nil {
		t.Errorf("main carries meta: %v", main.Meta)
	}

	// Indented defs are methods, not top-level artifacts.
	for _, a := range arts {
		if a.Name == "helper" {
			t.Error("Method helper extracted as top-level artifact")
		}
	}
}

func TestGoParser(t *testing.T) {
	src := `package web

import (
	"fmt"
	nethttp "net/http"
	_ "embed"
)

import "strings"

type Handler struct {
	mux *nethttp.ServeMux
}

type Store[T any] interface {
	Get(id string) (T, error)
}

func NewHandler(s Store[string]) *Handler {
	fmt.Println(strings.ToUpper("x"))
	return &Handler{}
}

func (h *Handler) ServeHTTP(w nethttp.ResponseWriter, r *nethttp.Request) {}
`
	arts, err := goParser{}.Parse("internal/web/handler.go", []byte(src))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	file := findArtifact(t, arts, KindFile, "handler")
	for _, target := range []string{"fmt", "net/http", "embed", "strings"} {
		if !hasRef(file, "imports", target) {
			t.Errorf("Missing import ref %q, refs: %v", target, file.Refs)
		}
	}

	handler := findArtifact(t, arts, KindType, "Handler")
	if handler.Meta["form"] != "struct" {
		t.Errorf("Handler form = %v", handler.Meta["form"])
	}
	findArtifact(t, arts, KindInterface, "Store")

	ctor := findArtifact(t, arts, KindFunction, "NewHandler")
	if ctor.Meta != nil {
		t.Errorf("Free function carries receiver meta: %v", ctor.Meta)
	}
	method := findArtifact(t, arts, KindFunction, "ServeHTTP")
	if method.Meta["receiver"] != "Handler" {
		t.Errorf("Receiver = %v", method.Meta["receiver"])
	}
}

func TestGoModParser(t *testing.T) {
	src := `module example.com/svc

go 1.24.0

require (
	github.com/google/uuid v1.6.0
	gopkg.in/yaml.v3 v3.0.1 // indirect
)

require modernc.org/sqlite v1.34.1
`
	arts, err := goParser{}.Parse("backend/go.mod", []byte(src))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	module := findArtifact(t, arts, KindModule, "example.com/svc")
	for _, dep := range []string{"github.com/google/uuid", "gopkg.in/yaml.v3", "modernc.org/sqlite"} {
		if !hasRef(module, "depends_on", dep) {
			t.Errorf("Missing depends_on ref %q", dep)
		}
	}

	uuid := findArtifact(t, arts, KindDependency, "github.com/google/uuid")
	if uuid.Meta["version"] != "v1.6.0" {
		t.Errorf("uuid version = %v", uuid.Meta["version"])
	}
	if _, ok := uuid.Meta["indirect"]; ok {
		t.Error("Direct dep flagged indirect")
	}
	yamlDep := findArtifact(t, arts, KindDependency, "gopkg.in/yaml.v3")
	if yamlDep.Meta["indirect"] != true {
		t.Errorf("Indirect flag = %v", yamlDep.Meta["indirect"])
	}
	findArtifact(t, arts, KindDependency, "modernc.org/sqlite")
}

func TestGoModParserWithoutModuleLine(t *testing.T) {
	arts, err := goParser{}.Parse("backend/go.mod", []byte("require github.com/google/uuid v1.6.0\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	findArtifact(t, arts, KindModule, "backend")
}

func TestPackageJSONParser(t *testing.T) {
	src := `{
  "name": "web-app",
  "version": "2.0.0",
  "dependencies": {"react": "^18.0.0"},
  "devDependencies": {"vitest": "^1.2.0"}
}`
	arts, err := genericParser{}.Parse("web/package.json", []byte(src))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	module := findArtifact(t, arts, KindModule, "web-app")
	if module.Meta["version"] != "2.0.0" {
		t.Errorf("Module version = %v", module.Meta["version"])
	}
	if !hasRef(module, "depends_on", "react") || !hasRef(module, "depends_on", "vitest") {
		t.Errorf("depends_on refs incomplete: %v", module.Refs)
	}

	react := findArtifact(t, arts, KindDependency, "react")
	if react.Meta["version"] != "^18.0.0" {
		t.Errorf("react version = %v", react.Meta["version"])
	}
	if _, ok := react.Meta["dev"]; ok {
		t.Error("Runtime dep flagged dev")
	}
	vitest := findArtifact(t, arts, KindDependency, "vitest")
	if vitest.Meta["dev"] != true {
		t.Errorf("Dev flag = %v", vitest.Meta["dev"])
	}
}

func TestPackageJSONParserMalformed(t *testing.T) {
	arts, err := genericParser{}.Parse("web/package.json", []byte("{not json"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(arts) != 1 || arts[0].Kind != KindFile {
		t.Fatalf("Malformed package.json should fall back to the file artifact, got %v", arts)
	}
}

func TestTSConfigParser(t *testing.T) {
	src := `{
  // build settings
  "compilerOptions": {
    "strict": true,
    "target": "ES2022"
  }
}`
	arts, err := genericParser{}.Parse("tsconfig.json", []byte(src))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	strict := findArtifact(t, arts, KindConfigKey, "strict")
	if strict.Meta["section"] != "compilerOptions" || strict.Meta["value"] != true {
		t.Errorf("strict meta = %v", strict.Meta)
	}
	target := findArtifact(t, arts, KindConfigKey, "target")
	if target.Meta["value"] != "ES2022" {
		t.Errorf("target value = %v", target.Meta["value"])
	}
}

func TestDotEnvParserNamesOnly(t *testing.T) {
	src := `# local overrides
DATABASE_URL=postgres://svc:hunter2@db/prod
EMPTY=
API_KEY="sk-secret-value"
`
	arts, err := genericParser{}.Parse("deploy/.env", []byte(src))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	file := findArtifact(t, arts, KindFile, ".env")
	if file.FilePath != "deploy/.env" {
		t.Errorf("File path = %q", file.FilePath)
	}
	findArtifact(t, arts, KindEnvVar, "DATABASE_URL")
	findArtifact(t, arts, KindEnvVar, "EMPTY")
	findArtifact(t, arts, KindEnvVar, "API_KEY")

	// Values are secrets; no artifact may carry them.
	for _, a := range arts {
		for _, secret := range []string{"hunter2", "sk-secret-value"} {
			if strings.Contains(a.Name, secret) {
				t.Errorf("Secret leaked into artifact name %q", a.Name)
			}
			for k, v := range a.Meta {
				if s, ok := v.(string); ok && strings.Contains(s, secret) {
					t.Errorf("Secret leaked into meta %s=%v", k, v)
				}
			}
		}
	}
}

func TestDockerfileParser(t *testing.T) {
	src := `FROM golang:1.24 AS build
ENV PORT=8080
EXPOSE 8080
FROM alpine:3.20
`
	arts, err := genericParser{}.Parse("Dockerfile", []byte(src))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	anchor := arts[0]
	if anchor.Kind != KindFile {
		t.Fatalf("First artifact = %s, want file anchor", anchor.Kind)
	}
	if !hasRef(anchor, "depends_on", "golang:1.24") || !hasRef(anchor, "depends_on", "alpine:3.20") {
		t.Errorf("Anchor refs incomplete: %v", anchor.Refs)
	}

	golang := findArtifact(t, arts, KindDependency, "golang:1.24")
	if golang.Meta["stage"] != "build" || golang.Meta["source"] != "dockerfile" {
		t.Errorf("golang meta = %v", golang.Meta)
	}
	alpine := findArtifact(t, arts, KindDependency, "alpine:3.20")
	if _, ok := alpine.Meta["stage"]; ok {
		t.Error("Unnamed stage got a stage name")
	}
	findArtifact(t, arts, KindEnvVar, "PORT")
	expose := findArtifact(t, arts, KindConfigKey, "expose:8080")
	if expose.Meta["port"] != "8080" {
		t.Errorf("expose port = %v", expose.Meta["port"])
	}
}

func TestGenericParserFallbacks(t *testing.T) {
	arts, err := genericParser{}.Parse("data/routes.json", []byte(`{"a": 1}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(arts) != 1 || arts[0].Meta["format"] != "json" {
		t.Errorf("JSON fallback = %v", arts)
	}

	arts, err = genericParser{}.Parse("README.txt", []byte("hello"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(arts) != 1 || arts[0].Kind != KindFile || arts[0].Name != "README" {
		t.Errorf("Plain fallback = %v", arts)
	}
}

func TestImportName(t *testing.T) {
	cases := map[string]string{
		"./http/router":  "router",
		"../lib/util.ts": "util",
		"./styles.css":   "styles",
		"express":        "express",
		"@scope/pkg":     "@scope/pkg",
	}
	for in, want := range cases {
		if got := importName(in); got != want {
			t.Errorf("importName(%q) = %q, want %q", in, got, want)
		}
	}
}
