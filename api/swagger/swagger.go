package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Applets Core API",
        "description": "Applet versioning and answer ingestion service",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "in": "header",
            "name": "Authorization"
        }
    },
    "tags": [
        {
            "name": "Applets",
            "description": "Applet authoring and version history"
        },
        {
            "name": "Answers",
            "description": "Answer ingestion"
        },
        {
            "name": "Files",
            "description": "Answer attachments"
        },
        {
            "name": "Workspaces",
            "description": "Arbitrary server settings"
        },
        {
            "name": "Users",
            "description": "Current user"
        }
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Liveness check",
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {
                        "description": "Ready"
                    },
                    "503": {
                        "description": "A dependency is unavailable"
                    }
                }
            }
        },
        "/metrics": {
            "get": {
                "summary": "Prometheus metrics",
                "produces": [
                    "text/plain"
                ],
                "responses": {
                    "200": {
                        "description": "Metrics"
                    }
                }
            }
        },
        "/applets": {
            "post": {
                "tags": [
                    "Applets"
                ],
                "summary": "Create applet",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "in": "body",
                        "name": "payload",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/AppletPayload"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/SingleEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation failed",
                        "schema": {
                            "$ref": "#/definitions/ErrorEnvelope"
                        }
                    }
                }
            }
        },
        "/applets/{id}": {
            "get": {
                "tags": [
                    "Applets"
                ],
                "summary": "Get applet",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "in": "path",
                        "name": "id",
                        "type": "string",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/SingleEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ErrorEnvelope"
                        }
                    }
                }
            },
            "put": {
                "tags": [
                    "Applets"
                ],
                "summary": "Update applet",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "in": "path",
                        "name": "id",
                        "type": "string",
                        "required": true
                    },
                    {
                        "in": "body",
                        "name": "payload",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/AppletPayload"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/SingleEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation failed",
                        "schema": {
                            "$ref": "#/definitions/ErrorEnvelope"
                        }
                    },
                    "403": {
                        "description": "Access denied",
                        "schema": {
                            "$ref": "#/definitions/ErrorEnvelope"
                        }
                    }
                }
            },
            "delete": {
                "tags": [
                    "Applets"
                ],
                "summary": "Soft delete applet",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "in": "path",
                        "name": "id",
                        "type": "string",
                        "required": true
                    }
                ],
                "responses": {
                    "204": {
                        "description": "Deleted"
                    },
                    "403": {
                        "description": "Access denied",
                        "schema": {
                            "$ref": "#/definitions/ErrorEnvelope"
                        }
                    }
                }
            }
        },
        "/applets/{id}/versions": {
            "get": {
                "tags": [
                    "Applets"
                ],
                "summary": "List applet versions",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "in": "path",
                        "name": "id",
                        "type": "string",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/MultiEnvelope"
                        }
                    }
                }
            }
        },
        "/applets/{id}/versions/{version}": {
            "get": {
                "tags": [
                    "Applets"
                ],
                "summary": "Get applet snapshot",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "in": "path",
                        "name": "id",
                        "type": "string",
                        "required": true
                    },
                    {
                        "in": "path",
                        "name": "version",
                        "type": "string",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/SingleEnvelope"
                        }
                    },
                    "404": {
                        "description": "Unknown version",
                        "schema": {
                            "$ref": "#/definitions/ErrorEnvelope"
                        }
                    }
                }
            }
        },
        "/answers": {
            "post": {
                "tags": [
                    "Answers"
                ],
                "summary": "Submit a group of answers",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "in": "body",
                        "name": "payload",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/SubmitAnswersRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Stored",
                        "schema": {
                            "$ref": "#/definitions/SingleEnvelope"
                        }
                    },
                    "200": {
                        "description": "Already stored",
                        "schema": {
                            "$ref": "#/definitions/SingleEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation failed",
                        "schema": {
                            "$ref": "#/definitions/ErrorEnvelope"
                        }
                    },
                    "409": {
                        "description": "Submit id conflict",
                        "schema": {
                            "$ref": "#/definitions/ErrorEnvelope"
                        }
                    }
                }
            }
        },
        "/answers/applet/{id}/completions": {
            "get": {
                "tags": [
                    "Answers"
                ],
                "summary": "List completed activities",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "in": "path",
                        "name": "id",
                        "type": "string",
                        "required": true
                    },
                    {
                        "in": "query",
                        "name": "fromDate",
                        "type": "string",
                        "required": true,
                        "description": "YYYY-MM-DD or RFC3339"
                    },
                    {
                        "in": "query",
                        "name": "version",
                        "type": "string",
                        "required": false
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/MultiEnvelope"
                        }
                    }
                }
            }
        },
        "/answers/applet/{id}/{answer_id}": {
            "delete": {
                "tags": [
                    "Answers"
                ],
                "summary": "Delete an answer",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "in": "path",
                        "name": "id",
                        "type": "string",
                        "required": true
                    },
                    {
                        "in": "path",
                        "name": "answer_id",
                        "type": "string",
                        "required": true
                    }
                ],
                "responses": {
                    "204": {
                        "description": "Deleted"
                    },
                    "403": {
                        "description": "Access denied",
                        "schema": {
                            "$ref": "#/definitions/ErrorEnvelope"
                        }
                    }
                }
            }
        },
        "/file/{applet_id}/upload": {
            "post": {
                "tags": [
                    "Files"
                ],
                "summary": "Upload an answer file",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "in": "path",
                        "name": "applet_id",
                        "type": "string",
                        "required": true
                    },
                    {
                        "in": "formData",
                        "name": "file",
                        "type": "file",
                        "required": true
                    }
                ],
                "consumes": [
                    "multipart/form-data"
                ],
                "responses": {
                    "201": {
                        "description": "Stored",
                        "schema": {
                            "$ref": "#/definitions/SingleEnvelope"
                        }
                    },
                    "400": {
                        "description": "Rejected",
                        "schema": {
                            "$ref": "#/definitions/ErrorEnvelope"
                        }
                    }
                }
            }
        },
        "/file/{applet_id}/download": {
            "get": {
                "tags": [
                    "Files"
                ],
                "summary": "Download an answer file",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "in": "path",
                        "name": "applet_id",
                        "type": "string",
                        "required": true
                    },
                    {
                        "in": "query",
                        "name": "token",
                        "type": "string",
                        "required": true,
                        "description": "Signed download token"
                    }
                ],
                "produces": [
                    "application/octet-stream"
                ],
                "responses": {
                    "200": {
                        "description": "File content"
                    },
                    "403": {
                        "description": "Invalid token",
                        "schema": {
                            "$ref": "#/definitions/ErrorEnvelope"
                        }
                    }
                }
            }
        },
        "/workspaces/{owner_id}/arbitrary": {
            "get": {
                "tags": [
                    "Workspaces"
                ],
                "summary": "Get arbitrary server settings",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "in": "path",
                        "name": "owner_id",
                        "type": "string",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/SingleEnvelope"
                        }
                    },
                    "403": {
                        "description": "Access denied",
                        "schema": {
                            "$ref": "#/definitions/ErrorEnvelope"
                        }
                    }
                }
            },
            "put": {
                "tags": [
                    "Workspaces"
                ],
                "summary": "Set arbitrary server settings",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "in": "path",
                        "name": "owner_id",
                        "type": "string",
                        "required": true
                    },
                    {
                        "in": "body",
                        "name": "payload",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/ArbitraryServerRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/SingleEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation failed",
                        "schema": {
                            "$ref": "#/definitions/ErrorEnvelope"
                        }
                    }
                }
            }
        },
        "/users/me": {
            "get": {
                "tags": [
                    "Users"
                ],
                "summary": "Get current user",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/SingleEnvelope"
                        }
                    }
                }
            }
        },
        "/users/me/password": {
            "put": {
                "tags": [
                    "Users"
                ],
                "summary": "Change password",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "in": "body",
                        "name": "payload",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/ChangePasswordRequest"
                        }
                    }
                ],
                "responses": {
                    "204": {
                        "description": "Changed"
                    },
                    "400": {
                        "description": "Validation failed",
                        "schema": {
                            "$ref": "#/definitions/ErrorEnvelope"
                        }
                    },
                    "409": {
                        "description": "Reencryption in progress",
                        "schema": {
                            "$ref": "#/definitions/ErrorEnvelope"
                        }
                    }
                }
            }
        }
    },
    "definitions": {
        "ErrorDetail": {
            "type": "object",
            "properties": {
                "message": {
                    "type": "string"
                },
                "type": {
                    "type": "string"
                },
                "path": {
                    "type": "array",
                    "items": {
                        "type": "string"
                    }
                }
            }
        },
        "ErrorEnvelope": {
            "type": "object",
            "properties": {
                "result": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/ErrorDetail"
                    }
                }
            }
        },
        "SingleEnvelope": {
            "type": "object",
            "properties": {
                "result": {
                    "type": "object"
                }
            }
        },
        "MultiEnvelope": {
            "type": "object",
            "properties": {
                "result": {
                    "type": "array",
                    "items": {
                        "type": "object"
                    }
                },
                "count": {
                    "type": "integer"
                }
            }
        },
        "AppletPayload": {
            "type": "object",
            "required": [
                "displayName",
                "activities"
            ],
            "properties": {
                "displayName": {
                    "type": "string"
                },
                "description": {
                    "type": "object"
                },
                "about": {
                    "type": "object"
                },
                "image": {
                    "type": "string"
                },
                "watermark": {
                    "type": "string"
                },
                "encryption": {
                    "type": "object"
                },
                "retentionPeriod": {
                    "type": "integer"
                },
                "retentionType": {
                    "type": "string"
                },
                "activities": {
                    "type": "array",
                    "items": {
                        "type": "object"
                    }
                },
                "activityFlows": {
                    "type": "array",
                    "items": {
                        "type": "object"
                    }
                }
            }
        },
        "SubmitAnswersRequest": {
            "type": "object",
            "required": [
                "submitId",
                "appletId",
                "version",
                "answers"
            ],
            "properties": {
                "submitId": {
                    "type": "string",
                    "format": "uuid"
                },
                "appletId": {
                    "type": "string",
                    "format": "uuid"
                },
                "version": {
                    "type": "string"
                },
                "flowId": {
                    "type": "string",
                    "format": "uuid"
                },
                "client": {
                    "type": "object"
                },
                "answers": {
                    "type": "array",
                    "items": {
                        "type": "object"
                    }
                }
            }
        },
        "ArbitraryServerRequest": {
            "type": "object",
            "properties": {
                "useArbitrary": {
                    "type": "boolean"
                },
                "databaseUri": {
                    "type": "string"
                },
                "storageType": {
                    "type": "string"
                },
                "url": {
                    "type": "string"
                },
                "accessKey": {
                    "type": "string"
                },
                "secretKey": {
                    "type": "string"
                },
                "region": {
                    "type": "string"
                },
                "bucket": {
                    "type": "string"
                }
            }
        },
        "ChangePasswordRequest": {
            "type": "object",
            "required": [
                "oldPassword",
                "newPassword"
            ],
            "properties": {
                "oldPassword": {
                    "type": "string"
                },
                "newPassword": {
                    "type": "string"
                }
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
