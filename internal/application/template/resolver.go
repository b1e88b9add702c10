// Package template resolves event types to localized notification content.
// The catalogue is compiled in; tenants supply variables, not templates.
package template

import (
	"strings"

	"github.com/go-push-engine/internal/domain"
)

// Resolved is the rendered content for one event.
type Resolved struct {
	Title     string
	Body      string
	Category  domain.Category
	Priority  domain.Priority
	ActionURL string
}

type entry struct {
	title     map[string]string
	body      map[string]string
	category  domain.Category
	priority  domain.Priority
	actionURL string
}

// Resolver renders the compiled-in catalogue. The zero value is not usable;
// construct with NewResolver.
type Resolver struct {
	catalogue     map[string]entry
	defaultLocale string
}

func NewResolver(defaultLocale string) *Resolver {
	if defaultLocale == "" {
		defaultLocale = "en"
	}
	return &Resolver{catalogue: catalogue, defaultLocale: defaultLocale}
}

// Resolve renders the template for eventType in the requested locale,
// substituting {placeholder} variables. Unknown event types fail closed with
// UnknownTemplateError. Missing locales fall back to the default locale.
func (r *Resolver) Resolve(eventType, locale string, vars map[string]string) (*Resolved, error) {
	e, ok := r.catalogue[eventType]
	if !ok {
		return nil, &domain.UnknownTemplateError{EventType: eventType}
	}
	if locale == "" {
		locale = r.defaultLocale
	}

	title := pickLocale(e.title, locale, r.defaultLocale)
	body := pickLocale(e.body, locale, r.defaultLocale)

	return &Resolved{
		Title:     interpolate(title, vars),
		Body:      interpolate(body, vars),
		Category:  e.category,
		Priority:  e.priority,
		ActionURL: interpolate(e.actionURL, vars),
	}, nil
}

// Known reports whether eventType has a registered template.
func (r *Resolver) Known(eventType string) bool {
	_, ok := r.catalogue[eventType]
	return ok
}

func pickLocale(m map[string]string, locale, fallback string) string {
	if s, ok := m[locale]; ok {
		return s
	}
	// "es-MX" falls back to "es" before the default.
	if i := strings.IndexByte(locale, '-'); i > 0 {
		if s, ok := m[locale[:i]]; ok {
			return s
		}
	}
	return m[fallback]
}

// interpolate replaces {name} markers with vars["name"]. Markers with no
// matching variable are left in place so missing data is visible downstream.
func interpolate(s string, vars map[string]string) string {
	if len(vars) == 0 || !strings.ContainsRune(s, '{') {
		return s
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(s)
}

var catalogue = map[string]entry{
	"order.confirmed": {
		title: map[string]string{
			"en": "Order confirmed",
			"es": "Pedido confirmado",
		},
		body: map[string]string{
			"en": "Your order {order_id} has been confirmed.",
			"es": "Tu pedido {order_id} ha sido confirmado.",
		},
		category:  domain.CategoryOrder,
		priority:  domain.PriorityNormal,
		actionURL: "app://orders/{order_id}",
	},
	"order.shipped": {
		title: map[string]string{
			"en": "Order on the way",
			"es": "Pedido en camino",
		},
		body: map[string]string{
			"en": "Your order {order_id} has shipped and will arrive soon.",
			"es": "Tu pedido {order_id} fue enviado y llegará pronto.",
		},
		category:  domain.CategoryDelivery,
		priority:  domain.PriorityNormal,
		actionURL: "app://orders/{order_id}/tracking",
	},
	"order.delivered": {
		title: map[string]string{
			"en": "Order delivered",
			"es": "Pedido entregado",
		},
		body: map[string]string{
			"en": "Your order {order_id} was delivered. Enjoy!",
			"es": "Tu pedido {order_id} fue entregado. ¡Disfrútalo!",
		},
		category:  domain.CategoryDelivery,
		priority:  domain.PriorityNormal,
		actionURL: "app://orders/{order_id}",
	},
	"payment.received": {
		title: map[string]string{
			"en": "Payment received",
			"es": "Pago recibido",
		},
		body: map[string]string{
			"en": "We received your payment of {amount}.",
			"es": "Recibimos tu pago de {amount}.",
		},
		category: domain.CategoryPayment,
		priority: domain.PriorityNormal,
	},
	"payment.failed": {
		title: map[string]string{
			"en": "Payment failed",
			"es": "Pago rechazado",
		},
		body: map[string]string{
			"en": "Your payment of {amount} could not be processed. Please update your payment method.",
			"es": "No pudimos procesar tu pago de {amount}. Actualiza tu método de pago.",
		},
		category:  domain.CategoryPayment,
		priority:  domain.PriorityHigh,
		actionURL: "app://account/payment-methods",
	},
	"promotion.flash_sale": {
		title: map[string]string{
			"en": "{title}",
			"es": "{title}",
		},
		body: map[string]string{
			"en": "{body}",
			"es": "{body}",
		},
		category: domain.CategoryPromotion,
		priority: domain.PriorityLow,
	},
	"support.reply": {
		title: map[string]string{
			"en": "New reply to your ticket",
			"es": "Nueva respuesta a tu ticket",
		},
		body: map[string]string{
			"en": "Support replied to ticket {ticket_id}.",
			"es": "Soporte respondió al ticket {ticket_id}.",
		},
		category:  domain.CategorySupport,
		priority:  domain.PriorityNormal,
		actionURL: "app://support/tickets/{ticket_id}",
	},
	"account.password_changed": {
		title: map[string]string{
			"en": "Password changed",
			"es": "Contraseña actualizada",
		},
		body: map[string]string{
			"en": "Your password was changed. If this wasn't you, contact support immediately.",
			"es": "Tu contraseña fue cambiada. Si no fuiste tú, contacta a soporte de inmediato.",
		},
		category: domain.CategoryAccount,
		priority: domain.PriorityUrgent,
	},
	"account.new_login": {
		title: map[string]string{
			"en": "New sign-in",
			"es": "Nuevo inicio de sesión",
		},
		body: map[string]string{
			"en": "New sign-in from {device} in {location}.",
			"es": "Nuevo inicio de sesión desde {device} en {location}.",
		},
		category: domain.CategoryAccount,
		priority: domain.PriorityHigh,
	},
	"reminder.cart_abandoned": {
		title: map[string]string{
			"en": "You left something behind",
			"es": "Dejaste algo pendiente",
		},
		body: map[string]string{
			"en": "Your cart is waiting. Complete your purchase before items sell out.",
			"es": "Tu carrito te espera. Completa tu compra antes de que se agoten.",
		},
		category:  domain.CategoryReminder,
		priority:  domain.PriorityLow,
		actionURL: "app://cart",
	},
}
