package payments

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	config "github.com/itsbooked/sports_booking/configs"
	"github.com/itsbooked/sports_booking/models"
	"github.com/shopspring/decimal"
)

const payfastLiveURL = "https://www.payfast.co.za/eng/process"
const payfastSandboxURL = "https://sandbox.payfast.co.za/eng/process"
const payfastLiveValidateURL = "https://www.payfast.co.za/eng/query/validate"
const payfastSandboxValidateURL = "https://sandbox.payfast.co.za/eng/query/validate"

const (
	StatusComplete  = "COMPLETE"
	StatusFailed    = "FAILED"
	StatusCancelled = "CANCELLED"
)

var (
	ErrMissingCredentials = errors.New("organisation has not configured Payfast credentials")
	ErrInvalidSignature   = errors.New("notification signature verification failed")
)

// Notification is a parsed Payfast ITN callback. It lives only long enough
// to drive a single reconciliation pass; deduplication happens downstream on
// PfPaymentID.
type Notification struct {
	MPaymentID    string
	PfPaymentID   string
	PaymentStatus string
	AmountGross   decimal.Decimal
	ItemName      string
	MerchantID    string
	Signature     string
	Fields        map[string]string
	ReceivedAt    time.Time
}

// RedirectPayload is everything the client needs to hand the user over to
// the gateway: the process URL plus signed form fields.
type RedirectPayload struct {
	ProcessURL string            `json:"process_url"`
	Fields     map[string]string `json:"fields"`
}

// Payfast signs payment forms over this exact field order, not
// alphabetically. See developers.payfast.co.za, step 1 form fields.
var signatureFieldOrder = []string{
	"merchant_id",
	"merchant_key",
	"return_url",
	"cancel_url",
	"notify_url",
	"name_first",
	"name_last",
	"email_address",
	"cell_number",
	"m_payment_id",
	"amount",
	"item_name",
	"item_description",
	"custom_int1",
	"custom_int2",
	"custom_int3",
	"custom_int4",
	"custom_int5",
	"custom_str1",
	"custom_str2",
	"custom_str3",
	"custom_str4",
	"custom_str5",
	"email_confirmation",
	"confirmation_address",
	"payment_method",
	"subscription_type",
	"billing_date",
	"recurring_amount",
	"frequency",
	"cycles",
}

var pfValueReplacer = strings.NewReplacer(
	"%28", "(",
	"%29", ")",
	"~", "%7E",
)

// encodePfValue url-encodes the way Payfast expects: spaces become +, the
// hex escapes stay uppercase, parentheses stay literal.
func encodePfValue(value string) string {
	return pfValueReplacer.Replace(url.QueryEscape(strings.TrimSpace(value)))
}

func generateSignature(data map[string]string, passphrase string) string {
	var params []string
	for _, field := range signatureFieldOrder {
		if value, ok := data[field]; ok && strings.TrimSpace(value) != "" {
			params = append(params, field+"="+encodePfValue(value))
		}
	}

	stringToSign := strings.Join(params, "&")
	if strings.TrimSpace(passphrase) != "" {
		stringToSign += "&passphrase=" + encodePfValue(passphrase)
	}

	sum := md5.Sum([]byte(stringToSign))
	return hex.EncodeToString(sum[:])
}

// BuildRedirect constructs the signed gateway handoff for a pending booking.
// Fails with ErrMissingCredentials when the organisation never configured
// its merchant account; callers surface that as a recoverable error, not a
// crash.
func BuildRedirect(booking *models.Booking, slot *models.ClassSlot, org *models.Organization) (*RedirectPayload, error) {
	if org.PayfastMerchantID == "" || org.PayfastMerchantKey == "" {
		return nil, ErrMissingCredentials
	}

	baseURL := config.Config("APP_BASE_URL")
	nameFirst, nameLast := splitName(booking.ParticipantName)

	fields := map[string]string{
		"merchant_id":      org.PayfastMerchantID,
		"merchant_key":     org.PayfastMerchantKey,
		"return_url":       baseURL + "/booking/" + booking.ID.String() + "/success",
		"cancel_url":       baseURL + "/booking/" + booking.ID.String() + "/cancelled",
		"notify_url":       config.Config("WEBHOOK_BASE_URL") + "/api/v1/payments/payfast/notify",
		"name_first":       nameFirst,
		"name_last":        nameLast,
		"email_address":    booking.ParticipantEmail,
		"m_payment_id":     booking.PaymentReference,
		"amount":           booking.Amount.StringFixed(2),
		"item_name":        slot.Name,
		"item_description": fmt.Sprintf("Class booking for %s", booking.ParticipantName),
		"custom_str1":      booking.ID.String(),
	}

	fields["signature"] = generateSignature(fields, org.PayfastPassphrase)

	processURL := payfastLiveURL
	if org.PayfastSandbox {
		processURL = payfastSandboxURL
	}

	return &RedirectPayload{ProcessURL: processURL, Fields: fields}, nil
}

// ParseNotification decodes a raw ITN form body. Signature verification is a
// separate step because the passphrase belongs to the organisation resolved
// from the referenced booking.
func ParseNotification(rawBody string) (*Notification, error) {
	values, err := url.ParseQuery(rawBody)
	if err != nil {
		return nil, fmt.Errorf("cannot parse notification body: %v", err)
	}

	fields := make(map[string]string, len(values))
	for key := range values {
		fields[key] = values.Get(key)
	}

	amount := decimal.Zero
	if raw := fields["amount_gross"]; raw != "" {
		amount, err = decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid amount_gross %q: %v", raw, err)
		}
	}

	return &Notification{
		MPaymentID:    fields["m_payment_id"],
		PfPaymentID:   fields["pf_payment_id"],
		PaymentStatus: fields["payment_status"],
		AmountGross:   amount,
		ItemName:      fields["item_name"],
		MerchantID:    fields["merchant_id"],
		Signature:     fields["signature"],
		Fields:        fields,
		ReceivedAt:    time.Now(),
	}, nil
}

// VerifySignature recomputes the notification signature with the
// organisation's passphrase. Callbacks that fail here must never mutate
// booking state.
func VerifySignature(n *Notification, passphrase string) error {
	data := make(map[string]string, len(n.Fields))
	for key, value := range n.Fields {
		if key == "signature" {
			continue
		}
		data[key] = value
	}

	expected := generateSignature(data, passphrase)
	if expected != n.Signature {
		return ErrInvalidSignature
	}
	return nil
}

// ValidateWithGateway asks Payfast to confirm the transaction server-to-
// server. Best effort; reconciliation treats a transport failure as
// inconclusive rather than fraudulent.
func ValidateWithGateway(pfPaymentID string, sandbox bool) (bool, error) {
	validateURL := payfastLiveValidateURL
	if sandbox {
		validateURL = payfastSandboxValidateURL
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.PostForm(validateURL, url.Values{"pf_payment_id": {pfPaymentID}})
	if err != nil {
		return false, fmt.Errorf("failed to reach Payfast validate endpoint: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("failed to read validate response: %v", err)
	}

	valid := strings.TrimSpace(string(body)) == "VALID"
	if !valid {
		log.Printf("Payfast validate returned %q for pf_payment_id %s", strings.TrimSpace(string(body)), pfPaymentID)
	}
	return valid, nil
}

func splitName(fullName string) (string, string) {
	parts := strings.Fields(fullName)
	if len(parts) == 0 {
		return "", ""
	}
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}
