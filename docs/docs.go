// Package docs holds the OpenAPI document for the gateway HTTP API. It is
// regenerated from the handler annotations with `swag init -g
// cmd/gateway/main.go -o docs` and registered with swag on import.
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
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Liveness probe",
                "operationId": "health",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.Ack"}}
                }
            }
        },
        "/webhook/telegram": {
            "post": {
                "description": "Accepts one Bot API update. Duplicates, malformed bodies and unsupported updates are acknowledged without side effects.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Webhook"],
                "summary": "Receive a Telegram update",
                "operationId": "telegramWebhook",
                "parameters": [
                    {"type": "string", "description": "Webhook secret (required when WEBHOOK_SECRET is set)", "name": "X-Telegram-Bot-Api-Secret-Token", "in": "header"},
                    {"description": "Telegram Update", "name": "body", "in": "body", "required": true, "schema": {"type": "object"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.Ack"}},
                    "403": {"description": "Secret mismatch", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/admin/flush-retries": {
            "post": {
                "description": "Replays every queued User Service write. Items that fail again stay queued.",
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "Flush the retry queue",
                "operationId": "flushRetries",
                "parameters": [
                    {"type": "string", "description": "Admin key (required when ADMIN_KEY is set)", "name": "X-Admin-Key", "in": "header"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.FlushResponse"}},
                    "403": {"description": "Admin key mismatch", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "429": {"description": "Rate limited", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Queue could not be read", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/admin/retries": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "Retry queue depth",
                "operationId": "retryStatus",
                "parameters": [
                    {"type": "string", "description": "Admin key", "name": "X-Admin-Key", "in": "header"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.QueueResponse"}},
                    "500": {"description": "Queue could not be read", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/admin/deliveries": {
            "get": {
                "description": "Newest first. limit defaults to 50 and is capped at 500.",
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "List reply deliveries",
                "operationId": "listDeliveries",
                "parameters": [
                    {"type": "string", "description": "Admin key", "name": "X-Admin-Key", "in": "header"},
                    {"enum": ["sent", "failed"], "type": "string", "description": "Filter by status", "name": "status", "in": "query"},
                    {"maximum": 500, "minimum": 1, "type": "integer", "description": "Max rows", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.DeliveriesResponse"}},
                    "400": {"description": "Unknown status", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Ledger error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/admin/webhook": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "Register the Telegram webhook",
                "operationId": "setWebhook",
                "parameters": [
                    {"type": "string", "description": "Admin key", "name": "X-Admin-Key", "in": "header"},
                    {"description": "Public webhook URL", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.SetWebhookRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.Ack"}},
                    "400": {"description": "Invalid URL", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "502": {"description": "Telegram rejected the call", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "delete": {
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "Remove the Telegram webhook",
                "operationId": "deleteWebhook",
                "parameters": [
                    {"type": "string", "description": "Admin key", "name": "X-Admin-Key", "in": "header"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.Ack"}},
                    "502": {"description": "Telegram rejected the call", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "domain.Delivery": {
            "type": "object",
            "properties": {
                "chat_id": {"type": "integer"},
                "created_at": {"type": "string"},
                "detail": {"type": "string"},
                "id": {"type": "string"},
                "retryable": {"type": "boolean"},
                "status": {"type": "string"},
                "telegram_message_id": {"type": "integer"},
                "user_id": {"type": "string"}
            }
        },
        "handlers.Ack": {
            "type": "object",
            "properties": {"ok": {"type": "boolean", "example": true}}
        },
        "handlers.DeliveriesResponse": {
            "type": "object",
            "properties": {
                "deliveries": {"type": "array", "items": {"$ref": "#/definitions/domain.Delivery"}},
                "stats": {"$ref": "#/definitions/repo.DeliveryStats"}
            }
        },
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "string", "example": "invalid_status"},
                "message": {"type": "string", "example": "status must be sent or failed"},
                "request_id": {"type": "string", "example": "123e4567-e89b-12d3-a456-426614174000"}
            }
        },
        "handlers.FlushResponse": {
            "type": "object",
            "properties": {"flushed": {"type": "integer", "example": 3}}
        },
        "handlers.QueueResponse": {
            "type": "object",
            "properties": {"queued": {"type": "integer", "example": 2}}
        },
        "handlers.SetWebhookRequest": {
            "type": "object",
            "required": ["url"],
            "properties": {"url": {"type": "string", "example": "https://gateway.example.com/webhook/telegram"}}
        },
        "repo.DeliveryStats": {
            "type": "object",
            "properties": {
                "by_status": {"type": "object", "additionalProperties": {"type": "integer"}},
                "last_at": {"type": "string"},
                "retryable_failures": {"type": "integer"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Messaging Gateway API",
	Description:      "Telegram webhook intake and operator endpoints for the messaging gateway.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
