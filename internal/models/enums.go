package models

import "fmt"

// Role is the position of an account in the distribution chain
type Role string

const (
	RoleHQ          Role = "hq"
	RoleBranch      Role = "branch"
	RoleMasterAgent Role = "master_agent"
	RoleAgent       Role = "agent"
	RoleMarketer    Role = "marketer"
)

func (r Role) Valid() bool {
	switch r {
	case RoleHQ, RoleBranch, RoleMasterAgent, RoleAgent, RoleMarketer:
		return true
	}
	return false
}

func (r *Role) UnmarshalText(b []byte) error {
	return parseEnum(b, r, "role")
}

// CanBeSuppliedBy reports whether upstream may fulfil stock requests from r
func (r Role) CanBeSuppliedBy(upstream Role) bool {
	switch r {
	case RoleMasterAgent, RoleBranch:
		return upstream == RoleHQ
	case RoleAgent:
		return upstream == RoleMasterAgent || upstream == RoleHQ
	case RoleMarketer:
		return upstream == RoleBranch
	case RoleHQ:
		return false
	}
	return false
}

// PriceTier selects a column of the product price schedule
type PriceTier string

const (
	TierHQ          PriceTier = "hq"
	TierMasterAgent PriceTier = "master_agent"
	TierAgent       PriceTier = "agent"
	TierCustomer    PriceTier = "customer"
)

func (t PriceTier) Valid() bool {
	switch t {
	case TierHQ, TierMasterAgent, TierAgent, TierCustomer:
		return true
	}
	return false
}

func (t *PriceTier) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*t = ""
		return nil
	}
	return parseEnum(b, t, "price tier")
}

// RequestStatus is the state of a TransferRequest
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestApproved  RequestStatus = "approved"
	RequestRejected  RequestStatus = "rejected"
	RequestCancelled RequestStatus = "cancelled"
)

func (s RequestStatus) Valid() bool {
	switch s {
	case RequestPending, RequestApproved, RequestRejected, RequestCancelled:
		return true
	}
	return false
}

func (s *RequestStatus) UnmarshalText(b []byte) error {
	return parseEnum(b, s, "request status")
}

// Terminal reports whether no further transition is allowed
func (s RequestStatus) Terminal() bool {
	return s != RequestPending
}

// PaymentMethod of a customer order
type PaymentMethod string

const (
	PaymentOnlineTransfer PaymentMethod = "OnlineTransfer"
	PaymentCOD            PaymentMethod = "COD"
	PaymentCash           PaymentMethod = "Cash"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentOnlineTransfer, PaymentCOD, PaymentCash:
		return true
	}
	return false
}

func (m *PaymentMethod) UnmarshalText(b []byte) error {
	return parseEnum(b, m, "payment method")
}

// DeliveryStatus of a customer order
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "Pending"
	DeliveryShipped DeliveryStatus = "Shipped"
	DeliveryReturn  DeliveryStatus = "Return"
)

func (s DeliveryStatus) Valid() bool {
	switch s {
	case DeliveryPending, DeliveryShipped, DeliveryReturn:
		return true
	}
	return false
}

func (s *DeliveryStatus) UnmarshalText(b []byte) error {
	return parseEnum(b, s, "delivery status")
}

// Platform is the sales channel an order came from
type Platform string

const (
	PlatformDirect   Platform = "direct"
	PlatformShopee   Platform = "shopee"
	PlatformTikTok   Platform = "tiktok"
	PlatformLazada   Platform = "lazada"
	PlatformPOS      Platform = "pos"
	PlatformWhatsApp Platform = "whatsapp"
)

func (p Platform) Valid() bool {
	switch p {
	case PlatformDirect, PlatformShopee, PlatformTikTok, PlatformLazada, PlatformPOS, PlatformWhatsApp:
		return true
	}
	return false
}

func (p *Platform) UnmarshalText(b []byte) error {
	return parseEnum(b, p, "platform")
}

// SelfTracked reports channels that hand out their own tracking numbers
func (p Platform) SelfTracked() bool {
	switch p {
	case PlatformShopee, PlatformTikTok, PlatformLazada:
		return true
	case PlatformDirect, PlatformPOS, PlatformWhatsApp:
		return false
	}
	return false
}

// MovementKind classifies a stock journal entry
type MovementKind string

const (
	MovementReceipt  MovementKind = "receipt"
	MovementTransfer MovementKind = "transfer"
	MovementSale     MovementKind = "sale"
	MovementRestock  MovementKind = "restock"
)

func (k MovementKind) Valid() bool {
	switch k {
	case MovementReceipt, MovementTransfer, MovementSale, MovementRestock:
		return true
	}
	return false
}

type enum interface {
	~string
	Valid() bool
}

func parseEnum[T enum](b []byte, dst *T, what string) error {
	v := T(b)
	if !v.Valid() {
		return fmt.Errorf("invalid %s %q", what, string(b))
	}
	*dst = v
	return nil
}
