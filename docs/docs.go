// Package docs holds the OpenAPI description served under /swagger.
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
        "/ack": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["queue"],
                "summary": "Acknowledge a message",
                "parameters": [
                    {
                        "description": "Message identity and fencing token",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/ack.ackRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ack.ackResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/respond.ErrorBody"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/respond.ErrorBody"}}
                }
            }
        },
        "/get_messages": {
            "get": {
                "produces": ["application/json"],
                "tags": ["queue"],
                "summary": "List stored messages",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/message.Message"}}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/respond.ErrorBody"}}
                }
            }
        },
        "/poll": {
            "get": {
                "description": "Leases due messages in scheduled order. The returned scheduled_at is the fencing token for ack.",
                "produces": ["application/json"],
                "tags": ["queue"],
                "summary": "Lease due messages",
                "parameters": [
                    {"type": "integer", "description": "Maximum number of messages", "name": "limit", "in": "query"},
                    {"type": "string", "description": "Message kind, empty selects the empty kind", "name": "kind", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/message.Message"}}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/respond.ErrorBody"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/respond.ErrorBody"}}
                }
            }
        },
        "/poll/{kind}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["queue"],
                "summary": "Lease due messages of a kind",
                "parameters": [
                    {"type": "string", "description": "Message kind", "name": "kind", "in": "path", "required": true},
                    {"type": "integer", "description": "Maximum number of messages", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/message.Message"}}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/respond.ErrorBody"}}
                }
            }
        },
        "/schedule_message": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["queue"],
                "summary": "Schedule a message",
                "parameters": [
                    {
                        "description": "Message",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/schedulemessage.scheduleMessageRequest"}
                    }
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/message.Message"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/respond.ErrorBody"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/respond.ErrorBody"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/respond.ErrorBody"}}
                }
            }
        },
        "/webhooks": {
            "get": {
                "produces": ["application/json"],
                "tags": ["webhooks"],
                "summary": "List webhooks",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/webhook.Webhook"}}}
                }
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["webhooks"],
                "summary": "Register a webhook",
                "parameters": [
                    {
                        "description": "Webhook",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/webhooks.createWebhookRequest"}
                    }
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/webhook.Webhook"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/respond.ErrorBody"}}
                }
            }
        },
        "/webhooks/{id}": {
            "put": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["webhooks"],
                "summary": "Update a webhook",
                "parameters": [
                    {"type": "string", "description": "Webhook id", "name": "id", "in": "path", "required": true},
                    {
                        "description": "Webhook",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/webhooks.updateWebhookRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/webhook.Webhook"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/respond.ErrorBody"}}
                }
            }
        }
    },
    "definitions": {
        "ack.ackRequest": {
            "type": "object",
            "required": ["key"],
            "properties": {
                "created_at": {"type": "integer"},
                "key": {"type": "string"},
                "kind": {"type": "string"},
                "scheduled_at": {"type": "integer"}
            }
        },
        "ack.ackResponse": {
            "type": "object",
            "properties": {
                "deleted": {"type": "integer"}
            }
        },
        "message.Message": {
            "type": "object",
            "properties": {
                "created_at": {"type": "integer"},
                "key": {"type": "string"},
                "kind": {"type": "string"},
                "payload": {"type": "string", "format": "byte"},
                "scheduled_at": {"type": "integer"},
                "scheduled_at_initially": {"type": "integer"}
            }
        },
        "respond.ErrorBody": {
            "type": "object",
            "properties": {
                "error": {"$ref": "#/definitions/respond.ErrorDetail"}
            }
        },
        "respond.ErrorDetail": {
            "type": "object",
            "properties": {
                "category": {"type": "string"},
                "code": {"type": "string"},
                "message": {"type": "string"}
            }
        },
        "schedulemessage.scheduleMessageRequest": {
            "type": "object",
            "properties": {
                "delay_seconds": {"type": "integer", "minimum": 0},
                "key": {"type": "string", "maxLength": 255},
                "kind": {"type": "string", "maxLength": 255},
                "payload": {"type": "string", "format": "byte"},
                "scheduled_at": {"type": "integer", "minimum": 0}
            }
        },
        "webhook.Webhook": {
            "type": "object",
            "properties": {
                "created_at": {"type": "integer"},
                "fails_count": {"type": "integer"},
                "id": {"type": "string"},
                "updated_at": {"type": "integer"},
                "url": {"type": "string"}
            }
        },
        "webhooks.createWebhookRequest": {
            "type": "object",
            "required": ["url"],
            "properties": {
                "url": {"type": "string"}
            }
        },
        "webhooks.updateWebhookRequest": {
            "type": "object",
            "required": ["url"],
            "properties": {
                "fails_count": {"type": "integer", "minimum": 0},
                "url": {"type": "string"}
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
	Title:            "delayq API",
	Description:      "Delayed-delivery message queue with leased polling and webhook dispatch.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
