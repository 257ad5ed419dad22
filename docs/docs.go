// Package docs registers the OpenAPI description served under /swagger.
// Regenerate the template with `swag init -g cmd/classgo/main.go`.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/healthz": {
            "get": {"summary": "Health check", "responses": {"200": {"description": "OK"}}}
        },
        "/sessions": {
            "get": {"summary": "List sessions", "responses": {"200": {"description": "OK"}}}
        },
        "/sessions/{id}": {
            "get": {
                "summary": "Get session",
                "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            }
        },
        "/sessions/{id}/availability": {
            "get": {
                "summary": "Get availability counters",
                "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            }
        },
        "/sessions/{id}/seats": {
            "get": {
                "summary": "Seat map of a session",
                "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            }
        },
        "/sessions/{id}/events": {
            "get": {
                "summary": "Stream seat events of a session (server-sent events)",
                "produces": ["text/event-stream"],
                "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "503": {"description": "Service Unavailable"}}
            }
        },
        "/sessions/{id}/waitlist": {
            "post": {
                "summary": "Join the waitlist of a full session",
                "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}],
                "responses": {"201": {"description": "Created"}, "409": {"description": "Conflict"}}
            }
        },
        "/assignments/{id}/reserve": {
            "post": {
                "summary": "Reserve a seat (idempotent)",
                "parameters": [
                    {"type": "integer", "name": "id", "in": "path", "required": true},
                    {"type": "string", "name": "Idempotency-Key", "in": "header"}
                ],
                "responses": {
                    "201": {"description": "Created"},
                    "409": {"description": "seat unavailable / idem in progress"},
                    "429": {"description": "rate limited"}
                }
            }
        },
        "/assignments/{id}/confirm": {
            "post": {
                "summary": "Confirm a reserved seat",
                "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "409": {"description": "Conflict"}}
            }
        },
        "/assignments/{id}/release": {
            "post": {
                "summary": "Release a seat",
                "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "409": {"description": "Conflict"}}
            }
        },
        "/admin/imports": {
            "post": {
                "summary": "Import a class schedule",
                "consumes": ["application/json", "text/csv"],
                "parameters": [{"type": "boolean", "name": "dry_run", "in": "query"}],
                "responses": {
                    "200": {"description": "dry run"},
                    "201": {"description": "Created"},
                    "422": {"description": "rows rejected"}
                }
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "ClassGo API",
	Description:      "Seat and time-slot reservations for studio class schedules.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
