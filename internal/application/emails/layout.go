package emails

import (
	"fmt"
	"strings"
	"time"
)

const (
	themePrimary   = "#2F7D32"
	themeTextMain  = "#1F2937"
	themeTextMuted = "#6B7280"
	themeBgBody    = "#F3F4F6"
	themeWhite     = "#FFFFFF"
)

// EmailLayout wraps content in the shared AgriHub HTML layout.
func EmailLayout(contentHTML string) string {
	year := time.Now().Year()
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>AgriHub</title>
  <style>
    body { margin: 0; padding: 0; width: 100%% !important; background-color: %s; }
    table { border-collapse: collapse; }
    body, td, p, a, li { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Helvetica, Arial, sans-serif; color: %s; }
    .content-body p { margin: 0 0 20px 0; font-size: 16px; line-height: 1.6; }
    .content-body h1 { font-size: 22px; margin: 0 0 18px 0; }
    .content-body td { padding: 4px 12px 4px 0; font-size: 15px; }
    .agri-button { display: inline-block; background-color: %s; color: #ffffff !important; padding: 12px 28px; text-decoration: none !important; border-radius: 6px; font-weight: 600; }
    .footer-text { color: %s; font-size: 13px; }
  </style>
</head>
<body style="margin: 0; padding: 0; background-color: %s;">
  <table role="presentation" width="100%%" border="0" cellspacing="0" cellpadding="0">
    <tr>
      <td align="center" style="padding: 40px 0;">
        <table role="presentation" width="600" border="0" cellspacing="0" cellpadding="0" style="width: 600px; background-color: %s; border-radius: 8px;">
          <tr><td align="center" style="padding: 36px 0 24px 0; font-size: 24px; font-weight: 700; color: %s;">AgriHub</td></tr>
          <tr><td class="content-body" style="padding: 0 48px 30px 48px;">%s</td></tr>
          <tr><td align="center" class="footer-text" style="padding: 24px 48px 36px 48px;">&copy; %d AgriHub. Connecting farmers with the tools and land they need.</td></tr>
        </table>
      </td>
    </tr>
  </table>
</body>
</html>`,
		themeBgBody, themeTextMain, themePrimary, themeTextMuted, themeBgBody, themeWhite, themePrimary,
		contentHTML, year)
}

// EscapeHTML escapes user-provided text placed into email bodies.
func EscapeHTML(s string) string {
	return strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&#39;",
	).Replace(s)
}
