package email

import (
	"fmt"
	"html"
	"time"
)

// BuildReceiptBody builds the HTML body of the upgrade receipt
func BuildReceiptBody(sessionID string, paidAt time.Time) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
	<div style="background: linear-gradient(135deg, #667eea 0%%, #764ba2 100%%); padding: 30px; border-radius: 10px 10px 0 0;">
		<h1 style="color: white; margin: 0; font-size: 24px;">Welcome to ClipSwift Premium</h1>
	</div>

	<div style="background: #fff; padding: 30px; border: 1px solid #eee; border-top: none; border-radius: 0 0 10px 10px;">
		<p style="margin-top: 0;">Thanks for upgrading. Every snippet you create is now unlocked, with no limit on how many you keep.</p>

		<div style="background: #f8f9fa; padding: 15px; border-radius: 5px; margin: 20px 0;">
			<p style="margin: 0; font-size: 14px; color: #666;">Checkout reference</p>
			<p style="margin: 5px 0 0 0; font-size: 16px; font-weight: bold; font-family: monospace;">%s</p>
			<p style="margin: 10px 0 0 0; font-size: 14px; color: #666;">Paid on %s</p>
		</div>

		<p>If the extension still shows the free plan, open it once while online and it will pick up the upgrade.</p>

		<p style="color: #999; font-size: 12px; margin-bottom: 0;">You are receiving this email because a ClipSwift Premium subscription was purchased with this address.</p>
	</div>
</body>
</html>`,
		html.EscapeString(sessionID),
		paidAt.UTC().Format("January 2, 2006 15:04 MST"),
	)
}
