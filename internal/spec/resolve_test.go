package spec

import (
	"context"
	"strings"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
)

const sampleSpec = `openapi: 3.0.0
info:
  title: Sample API
  version: "1.0.0"
paths:
  /pets:
    parameters:
      - in: query
        name: limit
        required: false
        schema:
          type: integer
          format: int32
    get:
      operationId: listPets
      tags: [read, animal]
      responses:
        "200":
          description: ok
          content:
            application/json:
              schema:
                type: array
                items:
                  $ref: '#/components/schemas/Pet'
    post:
      operationId: createPet
      tags: [write, animal]
      parameters:
        - in: header
          name: X-Request-Id
          required: true
          schema:
            type: string
      requestBody:
        required: true
        content:
          application/json:
            schema:
              $ref: '#/components/schemas/Pet'
      responses:
        "201":
          description: created
  /pets/{petId}:
    parameters:
      - in: path
        name: petId
        required: true
        schema:
          type: integer
          format: int64
    get:
      tags: [read]
      responses:
        "200":
          description: ok
          content:
            application/json:
              schema:
                $ref: '#/components/schemas/Pet'
  /admin:
    get:
      tags: [admin]
      responses:
        "200": { description: ok }
components:
  schemas:
    Pet:
      type: object
      required: [id, name]
      properties:
        id:
          type: integer
          format: int64
        name:
          type: string
        type:
          type: string
        petTags:
          type: array
          items:
            $ref: '#/components/schemas/Tag'
        parent:
          $ref: '#/components/schemas/Pet'
        weight:
          type: number
        status:
          $ref: '#/components/schemas/Status'
    Tag:
      type: object
      properties:
        label:
          type: string
    Status:
      type: string
      enum: [available, sold]
`

func loadDoc(t *testing.T, spec string) *openapi3.T {
	t.Helper()
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData([]byte(strings.TrimSpace(spec)))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		t.Fatalf("validate: %v", err)
	}
	return doc
}

func findRecord(t *testing.T, records []*Record, name string) *Record {
	t.Helper()
	for _, r := range records {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("record %s not found", name)
	return nil
}

func TestBuildRecords_Fields(t *testing.T) {
	t.Parallel()
	doc := loadDoc(t, sampleSpec)

	records, err := BuildRecords(context.Background(), doc)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	// Status is a string enum, not an object
	if len(records) != 2 || records[0].Name != "Pet" || records[1].Name != "Tag" {
		t.Fatalf("records: got %d", len(records))
	}

	pet := records[0]
	if pet.Module != "pet" {
		t.Errorf("module: got %q", pet.Module)
	}
	want := []Field{
		{Name: "id", TypePath: "i64", Required: true},
		{Name: "name", TypePath: "String", Required: true},
		{Name: "parent", TypePath: "super::pet::Pet", Boxed: true},
		{Name: "pet_tags", Rename: "petTags", TypePath: "Vec<super::tag::Tag>"},
		{Name: "status", TypePath: "String"},
		{Name: "type_", Rename: "type", TypePath: "String"},
		{Name: "weight", TypePath: "f64"},
	}
	if len(pet.Fields) != len(want) {
		t.Fatalf("fields: got %+v", pet.Fields)
	}
	for i, f := range want {
		if pet.Fields[i] != f {
			t.Errorf("field %d: want %+v got %+v", i, f, pet.Fields[i])
		}
	}
}

func TestBuildRecords_CollidingIdentifiers(t *testing.T) {
	t.Parallel()
	doc := loadDoc(t, `openapi: 3.0.0
info:
  title: Linked
  version: "1.0.0"
paths: {}
components:
  schemas:
    Node:
      type: object
      properties:
        "@id":
          type: string
        id:
          type: string
        petId:
          type: integer
        pet_id:
          type: integer
`)

	records, err := BuildRecords(context.Background(), doc)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	node := findRecord(t, records, "Node")
	want := []Field{
		{Name: "id_1", Rename: "@id", TypePath: "String"},
		{Name: "id", TypePath: "String"},
		{Name: "pet_id_1", Rename: "petId", TypePath: "i64"},
		{Name: "pet_id", TypePath: "i64"},
	}
	if len(node.Fields) != len(want) {
		t.Fatalf("fields: got %+v", node.Fields)
	}
	seen := map[string]bool{}
	for i, f := range want {
		if node.Fields[i] != f {
			t.Errorf("field %d: want %+v got %+v", i, f, node.Fields[i])
		}
		if seen[node.Fields[i].Name] {
			t.Errorf("duplicate field name %q", node.Fields[i].Name)
		}
		seen[node.Fields[i].Name] = true
	}
}

func TestBuildRecords_BoxesMutualRecursion(t *testing.T) {
	t.Parallel()
	doc := loadDoc(t, `openapi: 3.0.0
info:
  title: Tree
  version: "1.0.0"
paths: {}
components:
  schemas:
    Author:
      type: object
      properties:
        latest:
          $ref: '#/components/schemas/Book'
        profile:
          $ref: '#/components/schemas/Profile'
    Book:
      type: object
      properties:
        author:
          $ref: '#/components/schemas/Author'
        sequels:
          type: array
          items:
            $ref: '#/components/schemas/Book'
    Profile:
      type: object
      properties:
        bio:
          type: string
`)

	records, err := BuildRecords(context.Background(), doc)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	boxed := map[string]bool{}
	for _, r := range records {
		for _, f := range r.Fields {
			boxed[r.Name+"."+f.Name] = f.Boxed
		}
	}
	want := map[string]bool{
		"Author.latest":  true,
		"Author.profile": false,
		"Book.author":    true,
		"Book.sequels":   false,
		"Profile.bio":    false,
	}
	for k, v := range want {
		got, ok := boxed[k]
		if !ok {
			t.Errorf("%s: field missing", k)
			continue
		}
		if got != v {
			t.Errorf("%s: boxed want %v got %v", k, v, got)
		}
	}
}

func TestBuildRecords_Bindings(t *testing.T) {
	t.Parallel()
	doc := loadDoc(t, sampleSpec)

	records, err := BuildRecords(context.Background(), doc)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	pet := findRecord(t, records, "Pet")
	if got := pet.SortedPaths(); len(got) != 2 || got[0] != "/pets" || got[1] != "/pets/{petId}" {
		t.Fatalf("paths: got %v", got)
	}

	pets := pet.Paths["/pets"]
	if len(pets.Params) != 1 || pets.Params[0].Name != "limit" || pets.Params[0].TypePath != "i32" || pets.Params[0].Required {
		t.Fatalf("path params: got %+v", pets.Params)
	}
	if got := pets.SortedMethods(); len(got) != 2 || got[0] != GET || got[1] != POST {
		t.Fatalf("methods: got %v", got)
	}
	list := pets.Ops[GET]
	if list.ID != "listPets" || list.BodyRequired {
		t.Errorf("get /pets: got %+v", list)
	}
	create := pets.Ops[POST]
	if create.ID != "createPet" || !create.BodyRequired {
		t.Errorf("post /pets: got %+v", create)
	}
	if len(create.Params) != 1 || create.Params[0] != (Parameter{Name: "x_request_id", TypePath: "String", Required: true}) {
		t.Errorf("post /pets params: got %+v", create.Params)
	}

	byID := pet.Paths["/pets/{petId}"]
	if len(byID.Params) != 1 || byID.Params[0] != (Parameter{Name: "pet_id", TypePath: "i64", Required: true}) {
		t.Errorf("path params: got %+v", byID.Params)
	}

	tag := findRecord(t, records, "Tag")
	if len(tag.Paths) != 0 {
		t.Errorf("tag should be unbound, got %v", tag.SortedPaths())
	}
}

func TestBuildRecords_TagFiltering(t *testing.T) {
	t.Parallel()
	doc := loadDoc(t, sampleSpec)

	records, err := BuildRecords(context.Background(), doc, WithIncludeTags([]string{"write"}))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	pet := findRecord(t, records, "Pet")
	if got := pet.SortedPaths(); len(got) != 1 || got[0] != "/pets" {
		t.Fatalf("include tags: got %v", got)
	}
	if len(pet.Paths["/pets"].Ops) != 1 {
		t.Fatalf("include tags: expected only POST, got %v", pet.Paths["/pets"].SortedMethods())
	}

	records, err = BuildRecords(context.Background(), doc, WithExcludeTags([]string{"animal"}))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	pet = findRecord(t, records, "Pet")
	if got := pet.SortedPaths(); len(got) != 1 || got[0] != "/pets/{petId}" {
		t.Fatalf("exclude tags: got %v", got)
	}
}

func TestBuildRecords_MethodAndPathFilters(t *testing.T) {
	t.Parallel()
	doc := loadDoc(t, sampleSpec)

	records, err := BuildRecords(context.Background(), doc, WithMethods([]HttpMethod{"GET"}), WithPathPatterns([]string{"^/pets$"}))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	pet := findRecord(t, records, "Pet")
	if got := pet.SortedPaths(); len(got) != 1 || got[0] != "/pets" {
		t.Fatalf("filters: got %v", got)
	}
	if got := pet.Paths["/pets"].SortedMethods(); len(got) != 1 || got[0] != GET {
		t.Fatalf("filters: got %v", got)
	}
}

func TestBuildRecords_InvalidPattern(t *testing.T) {
	t.Parallel()
	doc := loadDoc(t, sampleSpec)

	if _, err := BuildRecords(context.Background(), doc, WithPathPatterns([]string{"("})); err == nil {
		t.Fatalf("expected error for invalid path pattern")
	}
}

func TestFieldIdent(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"petId":        "pet_id",
		"X-Request-Id": "x_request_id",
		"type":         "type_",
		"2fa":          "field_2_fa",
		"@id":          "id",
		"self":         "self_",
		"":             "field",
	}
	for in, want := range cases {
		if got := fieldIdent(in); got != want {
			t.Errorf("fieldIdent(%q): want %q got %q", in, want, got)
		}
	}
}

func TestHttpMethodString(t *testing.T) {
	t.Parallel()
	if got := DELETE.String(); got != "Delete" {
		t.Fatalf("display form: got %q", got)
	}
}
