package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the payguard MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolExecuteX402Payment = mcp.NewTool("execute_x402_payment",
	mcp.WithDescription(
		"Execute a gasless payment using an off-chain signed x402 intent (no wallet signing required). "+
			"The intent must carry an EIP-712 signature; expired or replayed intents are rejected."),
	mcp.WithString("intentId",
		mcp.Required(),
		mcp.Description("Unique intent ID")),
	mcp.WithString("fromAgent",
		mcp.Required(),
		mcp.Description("Source custodial wallet ID")),
	mcp.WithString("to",
		mcp.Required(),
		mcp.Description("Recipient address (0x...)")),
	mcp.WithString("amount",
		mcp.Required(),
		mcp.Description("Amount to send (e.g. '10.50')")),
	mcp.WithString("currency",
		mcp.Description("Currency code (default 'USD')")),
	mcp.WithNumber("expiresAt",
		mcp.Required(),
		mcp.Description("Unix timestamp expiry")),
	mcp.WithString("nonce",
		mcp.Required(),
		mcp.Description("Unique nonce for replay protection")),
	mcp.WithString("signature",
		mcp.Required(),
		mcp.Description("EIP-712 signature (0x...)")),
)

var ToolSendPayment = mcp.NewTool("send_payment",
	mcp.WithDescription(
		"Send a guarded payment from a custodial wallet. "+
			"The payment is simulated first and only executes if the simulation passes. "+
			"Raw 0x addresses are not accepted as the source wallet."),
	mcp.WithString("to_address",
		mcp.Required(),
		mcp.Description("Recipient blockchain address")),
	mcp.WithString("amount",
		mcp.Required(),
		mcp.Description("Amount to send as a positive decimal string (e.g. '10.50')")),
	mcp.WithString("from_wallet_id",
		mcp.Description("Source custodial wallet ID. Defaults to the configured wallet.")),
	mcp.WithString("currency",
		mcp.Description("Currency code (default 'USD')")),
	mcp.WithString("destination_chain",
		mcp.Description("Destination blockchain network for cross-chain transfers (e.g. BASE, ETH, MATIC)")),
)

var ToolCheckPaymentStatus = mcp.NewTool("check_payment_status",
	mcp.WithDescription(
		"Check the status of a previously executed payment by its transfer id. "+
			"Returns the lifecycle state and the blockchain transaction hash once available."),
	mcp.WithString("transfer_id",
		mcp.Required(),
		mcp.Description("The transfer id from a previous payment result")),
)
