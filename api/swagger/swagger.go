package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "EduSpace Enrollment API",
        "description": "Class invitations, student onboarding and roster management.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "tags": [
        {"name": "Authentication", "description": "Login and token lifecycle"},
        {"name": "Onboarding", "description": "Post-login reconciliation"},
        {"name": "Invitations", "description": "Class invitation lifecycle"},
        {"name": "Classes", "description": "Class management"},
        {"name": "Roster", "description": "Class roster import and export"},
        {"name": "Notifications", "description": "In-app notifications"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"},
                    "503": {"description": "Dependency unavailable"}
                }
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Refresh access token",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/me/reconcile": {
            "post": {
                "tags": ["Onboarding"],
                "summary": "Reconcile pending invitations and roster entries",
                "description": "Links unclaimed roster entries to the caller and returns pending invitations. Idempotent.",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/me/invitations": {
            "get": {
                "tags": ["Invitations"],
                "summary": "List my pending invitations",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/me/invitations/prompts": {
            "get": {
                "tags": ["Invitations"],
                "summary": "List my invitation prompts",
                "description": "Pending invitations minus the ones this session dismissed.",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/me/invitations/stream": {
            "get": {
                "tags": ["Invitations"],
                "summary": "Stream invitation events",
                "description": "Server-sent events scoped to the caller's email.",
                "produces": ["text/event-stream"],
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Event stream"}
                }
            }
        },
        "/me/invitations/{id}/accept": {
            "post": {
                "tags": ["Invitations"],
                "summary": "Accept an invitation",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already decided"}
                }
            }
        },
        "/me/invitations/{id}/reject": {
            "post": {
                "tags": ["Invitations"],
                "summary": "Reject an invitation",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already decided"}
                }
            }
        },
        "/me/invitations/{id}/dismiss": {
            "post": {
                "tags": ["Invitations"],
                "summary": "Dismiss an invitation prompt for this session",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Dismissed"}
                }
            }
        },
        "/me/invitations/{id}/reopen": {
            "post": {
                "tags": ["Invitations"],
                "summary": "Reopen a dismissed invitation prompt",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Reopened"}
                }
            }
        },
        "/me/notifications": {
            "get": {
                "tags": ["Notifications"],
                "summary": "List my notifications",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "unread", "in": "query", "type": "boolean"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/me/notifications/{id}/read": {
            "post": {
                "tags": ["Notifications"],
                "summary": "Mark a notification read",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Marked read"}
                }
            }
        },
        "/classes": {
            "get": {
                "tags": ["Classes"],
                "summary": "List classes",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Classes"],
                "summary": "Create a class",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateClassRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/classes/{id}/invitations": {
            "get": {
                "tags": ["Invitations"],
                "summary": "List a class's invitations",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "status", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Invitations"],
                "summary": "Invite a student to a class",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/InviteStudentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/invitations/{id}": {
            "delete": {
                "tags": ["Invitations"],
                "summary": "Withdraw a pending invitation",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Withdrawn"},
                    "412": {"description": "Already decided"}
                }
            }
        },
        "/classes/{id}/roster": {
            "get": {
                "tags": ["Roster"],
                "summary": "List a class roster",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "unclaimed", "in": "query", "type": "boolean"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/classes/{id}/roster/import": {
            "post": {
                "tags": ["Roster"],
                "summary": "Bulk import roster rows",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RosterImportPayload"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/classes/{id}/roster/export": {
            "post": {
                "tags": ["Roster"],
                "summary": "Export a class roster",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/exports/download": {
            "get": {
                "tags": ["Roster"],
                "summary": "Download a roster export",
                "parameters": [
                    {"name": "token", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "File"},
                    "401": {"description": "Invalid token"}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "CreateClassRequest": {
            "type": "object",
            "required": ["name", "subject"],
            "properties": {
                "name": {"type": "string"},
                "subject": {"type": "string"},
                "description": {"type": "string"}
            }
        },
        "InviteStudentRequest": {
            "type": "object",
            "required": ["student_email"],
            "properties": {
                "student_email": {"type": "string"},
                "student_name": {"type": "string"},
                "register_number": {"type": "string"}
            }
        },
        "RosterImportPayload": {
            "type": "object",
            "properties": {
                "rows": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/RosterImportRow"}
                }
            }
        },
        "RosterImportRow": {
            "type": "object",
            "required": ["register_number", "student_name", "email"],
            "properties": {
                "register_number": {"type": "string"},
                "student_name": {"type": "string"},
                "email": {"type": "string"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
