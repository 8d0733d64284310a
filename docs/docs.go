// Package docs registers the dashboard OpenAPI document with swag so that
// gin-swagger can serve it under /swagger.
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
        "/feed": {
            "get": {
                "produces": ["application/json"],
                "tags": ["feed"],
                "summary": "Load the push feed and its action records",
                "parameters": [
                    {"type": "boolean", "default": true, "description": "Fetch every page", "name": "all", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.FeedView"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/feed/refresh": {
            "post": {
                "produces": ["application/json"],
                "tags": ["feed"],
                "summary": "Drop the loaded feed and fetch it again",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.FeedView"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/actions": {
            "get": {
                "produces": ["application/json"],
                "tags": ["actions"],
                "summary": "List parsed action records",
                "parameters": [
                    {"type": "integer", "description": "Maximum records", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ActionsResponse"}}
                }
            }
        },
        "/actions/{id}/decision": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["actions"],
                "summary": "Accept, reject or skip an action",
                "parameters": [
                    {"type": "string", "description": "Action ID", "name": "id", "in": "path", "required": true},
                    {"type": "string", "description": "Replay-safe key", "name": "Idempotency-Key", "in": "header"},
                    {"description": "Decision", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.DecisionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.DecisionResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/actions/{id}/answer": {
            "put": {
                "consumes": ["application/json"],
                "tags": ["actions"],
                "summary": "Replace the generated answer of an action",
                "parameters": [
                    {"type": "string", "description": "Action ID", "name": "id", "in": "path", "required": true},
                    {"description": "Answer", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.AnswerRequest"}}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/actions/{id}/retry": {
            "post": {
                "tags": ["actions"],
                "summary": "Return a failed action to pending",
                "parameters": [
                    {"type": "string", "description": "Action ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/pushes/{iden}": {
            "delete": {
                "tags": ["pushes"],
                "summary": "Delete a push from the remote feed",
                "parameters": [
                    {"type": "string", "description": "Push iden", "name": "iden", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/history": {
            "get": {
                "produces": ["application/json"],
                "tags": ["history"],
                "summary": "Initial history view for a filter",
                "parameters": [
                    {"enum": ["all", "posted", "skipped"], "type": "string", "name": "filter", "in": "query"},
                    {"type": "string", "name": "If-None-Match", "in": "header"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.HistoryView"}},
                    "304": {"description": "Not Modified"}
                }
            },
            "post": {
                "consumes": ["application/json"],
                "tags": ["history"],
                "summary": "Record a decided action",
                "parameters": [
                    {"description": "Record", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.CreateHistoryRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created"},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/history/more": {
            "get": {
                "produces": ["application/json"],
                "tags": ["history"],
                "summary": "Next older page",
                "parameters": [
                    {"enum": ["all", "posted", "skipped"], "type": "string", "name": "filter", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.Page"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/history/newer": {
            "get": {
                "produces": ["application/json"],
                "tags": ["history"],
                "summary": "Records newer than the top of the view",
                "parameters": [
                    {"enum": ["all", "posted", "skipped"], "type": "string", "name": "filter", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.Page"}}
                }
            }
        },
        "/events": {
            "get": {
                "tags": ["events"],
                "summary": "WebSocket stream of notifications",
                "responses": {
                    "101": {"description": "Switching Protocols"},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "request_id": {"type": "string"}
            }
        },
        "handlers.DecisionRequest": {
            "type": "object",
            "required": ["decision"],
            "properties": {"decision": {"type": "string", "enum": ["accept", "reject", "skip"]}}
        },
        "handlers.DecisionResponse": {
            "type": "object",
            "properties": {
                "action_id": {"type": "string"},
                "decision": {"type": "string"},
                "replayed": {"type": "boolean"}
            }
        },
        "handlers.AnswerRequest": {
            "type": "object",
            "properties": {"answer": {"type": "string"}}
        },
        "handlers.ActionsResponse": {
            "type": "object",
            "properties": {
                "actions": {"type": "array", "items": {"type": "object"}},
                "total": {"type": "integer"}
            }
        },
        "handlers.CreateHistoryRequest": {
            "type": "object",
            "required": ["action_id", "status"],
            "properties": {
                "action_id": {"type": "integer"},
                "status": {"type": "string", "enum": ["posted", "skipped"]},
                "generated_answer": {"type": "string"},
                "original_post": {"type": "object"}
            }
        },
        "services.FeedView": {"type": "object"},
        "services.HistoryView": {"type": "object"},
        "services.Page": {"type": "object"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "FlashbackBot Dashboard API",
	Description:      "Review, decide and browse the actions FlashbackBot publishes to its push feed.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
