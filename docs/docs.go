// Package docs registers the mathres OpenAPI document with swag.
//
//	@title			mathres API
//	@version		1.0
//	@description	Restructures OCR'd mathematics answer scripts into question/answer records and awards marks against the rubric.
//	@BasePath		/
//	@schemes		http https
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
        "/mathres/": {
            "get": {
                "produces": ["application/json"],
                "tags": ["service"],
                "summary": "Service information",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/endpoints.IndexResponse"}}
                }
            }
        },
        "/mathres/health": {
            "get": {
                "description": "Checks connectivity to the results backend. Always answers 200; inspect status.",
                "produces": ["application/json"],
                "tags": ["service"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/endpoints.HealthResponse"}}
                }
            }
        },
        "/mathres/status": {
            "get": {
                "produces": ["application/json"],
                "tags": ["service"],
                "summary": "Server status",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}}
                }
            }
        },
        "/mathres/llmcalls": {
            "get": {
                "produces": ["application/json"],
                "tags": ["pipeline"],
                "summary": "List recorded LLM calls",
                "parameters": [
                    {"type": "string", "description": "Run ID", "name": "run_id", "in": "query"},
                    {"type": "string", "description": "Script ID", "name": "script_id", "in": "query"},
                    {"type": "string", "description": "Subject ID", "name": "subject_id", "in": "query"},
                    {"type": "string", "description": "Agent name", "name": "agent", "in": "query"},
                    {"type": "boolean", "description": "Filter by outcome", "name": "success", "in": "query"},
                    {"type": "integer", "description": "Max results (default 100)", "name": "limit", "in": "query"},
                    {"type": "integer", "description": "Offset", "name": "offset", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/endpoints.LLMCallsResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/endpoints.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/endpoints.ErrorResponse"}}
                }
            }
        },
        "/mathres/restructure/{subject_id}/{script_id}": {
            "get": {
                "description": "Fetches the OCR text and rubric, runs the restructure and marking agents, and persists the result.",
                "produces": ["application/json"],
                "tags": ["restructure"],
                "summary": "Restructure a script",
                "parameters": [
                    {"type": "string", "description": "Subject ID", "name": "subject_id", "in": "path", "required": true},
                    {"type": "string", "description": "Script ID", "name": "script_id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/endpoints.RestructureResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/endpoints.RestructureResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/endpoints.RestructureResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/endpoints.ErrorResponse"}}
                }
            }
        },
        "/mathres/restructure/{subject_id}/{script_id}/enqueue": {
            "post": {
                "description": "Pushes a job onto the Redis queue for a mathres worker.",
                "produces": ["application/json"],
                "tags": ["restructure"],
                "summary": "Queue a restructure job",
                "parameters": [
                    {"type": "string", "description": "Subject ID", "name": "subject_id", "in": "path", "required": true},
                    {"type": "string", "description": "Script ID", "name": "script_id", "in": "path", "required": true}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"type": "object"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/endpoints.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/endpoints.ErrorResponse"}}
                }
            }
        },
        "/mathres/extract": {
            "post": {
                "description": "Recovers qa or marking records from free-form agent output.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["extract"],
                "summary": "Extract structured records",
                "parameters": [
                    {"description": "Raw output and schema", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/endpoints.ExtractRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/endpoints.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "endpoints.ErrorResponse": {
            "type": "object",
            "properties": {"error": {"type": "string"}}
        },
        "endpoints.LLMCallsResponse": {
            "type": "object",
            "properties": {
                "calls": {"type": "array", "items": {"$ref": "#/definitions/llmcall.Call"}},
                "count": {"type": "integer"}
            }
        },
        "llmcall.Call": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "timestamp": {"type": "string"},
                "latency_ms": {"type": "integer"},
                "run_id": {"type": "string"},
                "subject_id": {"type": "string"},
                "script_id": {"type": "string"},
                "agent": {"type": "string"},
                "prompt_key": {"type": "string"},
                "prompt_hash": {"type": "string"},
                "provider": {"type": "string"},
                "model": {"type": "string"},
                "input_tokens": {"type": "integer"},
                "output_tokens": {"type": "integer"},
                "response": {"type": "string"},
                "success": {"type": "boolean"},
                "error": {"type": "string"}
            }
        },
        "endpoints.ExtractRequest": {
            "type": "object",
            "properties": {
                "raw_output": {"type": "string"},
                "schema": {"type": "string", "enum": ["qa", "marking"]}
            }
        },
        "endpoints.HealthResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "backend": {"type": "string"},
                "backend_url": {"type": "string"},
                "details": {"type": "string"},
                "error": {"type": "string"}
            }
        },
        "endpoints.IndexResponse": {
            "type": "object",
            "properties": {
                "message": {"type": "string"},
                "endpoints": {"type": "object", "additionalProperties": {"type": "string"}}
            }
        },
        "endpoints.RestructureResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "subject_id": {"type": "string"},
                "script_id": {"type": "string"},
                "message": {"type": "string"},
                "run_id": {"type": "string"},
                "result": {"type": "object"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "mathres API",
	Description:      "Restructures OCR'd mathematics answer scripts into question/answer records and awards marks against the rubric.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
