package bot

const (
	txtOops            = "❌ Oops! Something went wrong. Try again or notify the admin."
	txtBusy            = "⏳ Busy right now, please try again in a moment."
	txtInvalidLink     = "🔍 Invalid or expired link."
	txtDeliveryFailed  = "⌛ Failed to send files after multiple attempts."
	txtUploadDenied    = "🚫 You are not authorized to upload files."
	txtProbeFailed     = "⚠️ Error: This file appears to be invalid or inaccessible. Please resend it."
	txtNoticeFew       = "📥 Files received. Use /savefiles when done."
	txtNoticeMany      = "📥 Received %d files in this batch. Use /savefiles when ready."
	txtEmptyBatch      = "📭 No files found! Please upload files first."
	txtUploadCanceled  = "❌ Your pending file uploads have been canceled."
	txtDeleteUsage     = "ℹ Usage: /deletefiles <code>"
	txtDeleteDenied    = "❌ Either the code is invalid or you don't own these files."
	txtDeleted         = "🗑️ Files successfully deleted!"
	txtVaultEmpty      = "📭 Your file vault is empty!"
	txtConfigDenied    = "❌ Invalid code or you don't own these files."
	txtConfigForbidden = "🚫 You are not authorized to configure settings."
	txtHoursInvalid    = "⚠️ Please enter a valid number between 1 and 720."
	txtNoAudience      = "📭 No users to broadcast to."
	txtNoPending       = "⚠️ No pending broadcast to confirm."
	txtNoPendingCancel = "⚠️ No pending broadcast to cancel."
	txtPendingDropped  = "🗑️ Pending broadcast discarded."
	txtConfirmPrompt   = "⚠️ This will broadcast to %d users. Confirm with /broadcast_confirm or cancel with /broadcast_cancel."
)

const txtBroadcastUsage = `ℹ How to broadcast:

1. Send the content you want to broadcast (text, photo, video, etc.)
2. Reply to that message with /broadcast

The bot will copy your exact message to all users.`

const txtWelcome = `🌟 Welcome to the File Sharing Bot! 🌟

📤 To upload files:
1. Send me any files (photos, videos, documents, etc.)
2. Use /savefiles when done to get a shareable link

📥 To download files:
• Click on any shared link from this bot

🔧 Other commands:
/viewfiles - See your uploaded files
/deletefiles [code] - Delete a file batch
/cancelupload - Cancel current upload session
/config - Configure auto-delete settings

🚀 Start by sending me some files!`

const txtHelpOwner = `<b>📚 Bot Command Guide</b>

<b>👋 General Commands:</b>
/start - Welcome message and instructions
/help - Show this help message

<b>📤 Upload Commands:</b>
/savefiles - Save uploaded files and generate link
/cancelupload - Cancel current upload session

<b>🗂 File Management:</b>
/viewfiles - View your uploaded files with codes
/deletefiles [code] - Delete files using their code

<b>⚙️ Configuration:</b>
/config - Configure auto-delete settings
/config [code] - Configure specific file batch

<b>⚙️ Admin Tools:</b>
/stats - View bot statistics
/broadcast - Send message to all users
/broadcast_confirm - Confirm a large broadcast
/broadcast_cancel - Drop a pending broadcast
/uptime - Show bot running time

<b>🔄 How to Use:</b>
1. Send files (photos, videos, documents etc)
2. Use /savefiles to get shareable link
3. Share the link with anyone`

const txtHelpPublic = `<b>📚 Available Commands:</b>
/start - Welcome message
/help - Show this help

<b>🔄 How to Use:</b>
• Click shared links to download files
• Contact owner for upload access`
