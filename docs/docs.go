// Package docs registers the OpenAPI document served at /swagger/doc.json.
// Regenerate with `swag init -g main.go` after changing handler annotations.
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
		"/api/v1/payments/orders": {
			"post": {
				"tags": [
					"Payments"
				],
				"summary": "Create Payment Order",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/dto.APIResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				]
			},
			"get": {
				"tags": [
					"Payments"
				],
				"summary": "List Payment Orders",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/dto.APIResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/api/v1/payments/orders/{uuid}": {
			"get": {
				"tags": [
					"Payments"
				],
				"summary": "Get Payment Order",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/dto.APIResponse"
						}
					}
				},
				"parameters": [
					{
						"type": "string",
						"name": "uuid",
						"in": "path",
						"required": true
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/api/v1/payments/orders/by-number/{order_no}": {
			"get": {
				"tags": [
					"Payments"
				],
				"summary": "Get Payment Order By Number",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/dto.APIResponse"
						}
					}
				},
				"parameters": [
					{
						"type": "string",
						"name": "order_no",
						"in": "path",
						"required": true
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/api/v1/payments/orders/{uuid}/cancel": {
			"post": {
				"tags": [
					"Payments"
				],
				"summary": "Cancel Payment Order",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/dto.APIResponse"
						}
					}
				},
				"parameters": [
					{
						"type": "string",
						"name": "uuid",
						"in": "path",
						"required": true
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/api/v1/payments/orders/{uuid}/pay": {
			"post": {
				"tags": [
					"Payments"
				],
				"summary": "Initiate Payment",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/dto.APIResponse"
						}
					}
				},
				"parameters": [
					{
						"type": "string",
						"name": "uuid",
						"in": "path",
						"required": true
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/api/v1/payments/statistics": {
			"get": {
				"tags": [
					"Payments"
				],
				"summary": "Payment Statistics",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/dto.APIResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/api/v1/payments/refunds": {
			"post": {
				"tags": [
					"Refunds"
				],
				"summary": "Request Refund",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/dto.APIResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/api/v1/payments/refunds/{uuid}": {
			"get": {
				"tags": [
					"Refunds"
				],
				"summary": "Get Refund",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/dto.APIResponse"
						}
					}
				},
				"parameters": [
					{
						"type": "string",
						"name": "uuid",
						"in": "path",
						"required": true
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/api/v1/payments/refunds/{uuid}/review": {
			"post": {
				"tags": [
					"Refunds"
				],
				"summary": "Review Refund",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/dto.APIResponse"
						}
					}
				},
				"parameters": [
					{
						"type": "string",
						"name": "uuid",
						"in": "path",
						"required": true
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/api/v1/payments/balance": {
			"get": {
				"tags": [
					"Balance"
				],
				"summary": "Get Balance",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/dto.APIResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/api/v1/payments/balance/transactions": {
			"get": {
				"tags": [
					"Balance"
				],
				"summary": "List Balance Transactions",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/dto.APIResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/api/v1/payments/prices": {
			"get": {
				"tags": [
					"Prices"
				],
				"summary": "List Service Prices",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/dto.APIResponse"
						}
					}
				}
			}
		},
		"/api/v1/payments/prices/{service_type}": {
			"get": {
				"tags": [
					"Prices"
				],
				"summary": "Get Service Price",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/dto.APIResponse"
						}
					}
				},
				"parameters": [
					{
						"type": "string",
						"name": "service_type",
						"in": "path",
						"required": true
					}
				]
			}
		},
		"/api/v1/payments/callback/alipay": {
			"post": {
				"tags": [
					"Payment Callbacks"
				],
				"summary": "Alipay Notification",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/dto.APIResponse"
						}
					}
				}
			}
		},
		"/api/v1/payments/callback/wechat": {
			"post": {
				"tags": [
					"Payment Callbacks"
				],
				"summary": "WeChat Pay Notification",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/dto.APIResponse"
						}
					}
				}
			}
		},
		"/api/v1/admin/payments/config/{payment_method}": {
			"get": {
				"tags": [
					"Admin Payments"
				],
				"summary": "Get Gateway Config",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/dto.APIResponse"
						}
					}
				},
				"parameters": [
					{
						"type": "string",
						"name": "payment_method",
						"in": "path",
						"required": true
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				]
			},
			"put": {
				"tags": [
					"Admin Payments"
				],
				"summary": "Update Gateway Config",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/dto.APIResponse"
						}
					}
				},
				"parameters": [
					{
						"type": "string",
						"name": "payment_method",
						"in": "path",
						"required": true
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/api/v1/admin/payments/balances/adjust": {
			"post": {
				"tags": [
					"Admin Payments"
				],
				"summary": "Adjust Balance",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/dto.APIResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/api/v1/admin/payments/orders/export": {
			"get": {
				"tags": [
					"Admin Payments"
				],
				"summary": "Export Payment Orders",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/dto.APIResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/api/v1/admin/payments/transactions/{uuid}/reconcile": {
			"post": {
				"tags": [
					"Admin Payments"
				],
				"summary": "Reconcile Transaction",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/dto.APIResponse"
						}
					}
				},
				"parameters": [
					{
						"type": "string",
						"name": "uuid",
						"in": "path",
						"required": true
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		}
	},
	"definitions": {
		"dto.APIResponse": {
			"type": "object",
			"properties": {
				"success": {
					"type": "boolean"
				},
				"message": {
					"type": "string"
				},
				"data": {},
				"error": {}
			}
		}
	},
	"securityDefinitions": {
		"BearerAuth": {
			"type": "apiKey",
			"name": "Authorization",
			"in": "header"
		}
	}
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:		  "1.0",
	Host:			 "",
	BasePath:		 "/",
	Schemes:		  []string{},
	Title:			"MediPay Payment API",
	Description:	  "Payment, refund and wallet settlement for telemedicine consultations.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:		"{{",
	RightDelim:	   "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
