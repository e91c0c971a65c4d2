package notify

import (
	"fmt"
	"html"
	"strings"
)

var (
	startDepositButton  = Button{Label: "Start Deposit", Action: ActionStartDeposit}
	cancelButton        = Button{Label: "❌Cancel", Action: ActionCancel}
	checkBalanceButton  = Button{Label: "Check Balance", Action: ActionCheckBalance}
	startTransferButton = Button{Label: "Start Transfer", Action: ActionStartTransfer}
)

// ==================== Start ====================

func Welcome() Message {
	return Message{
		Text:    "🔰Welcome to the AirPay bot!👾 Start a deposit, check your wallet balance or transfer AMB to multiple wallets.",
		Buttons: []Button{startDepositButton, checkBalanceButton, startTransferButton},
	}
}

func BulkWalletCreated(address string) Message {
	return Message{Text: fmt.Sprintf("🚀This wallet is your bulk withdrawal wallet:\n<code>%s</code>", address)}
}

func WelcomeBack(address string) Message {
	return Message{Text: fmt.Sprintf("♻️Welcome back! This is your account address:\n<code>%s</code>", address)}
}

func NoAccount() Message {
	return Message{Text: "You do not have a wallet yet. Please use the Start button to create one."}
}

// ==================== Deposit ====================

func AskDepositAmount() Message {
	return Message{Text: "🔴Please enter the amount of AMB you'd like your customer to pay:"}
}

func InvalidDepositAmount() Message {
	return Message{Text: "❌Invalid amount! Please enter a valid AMB amount."}
}

func DepositInProgress(address string) Message {
	return Message{
		Text:    fmt.Sprintf("⏳A deposit to <code>%s</code> is still being monitored. Cancel it before starting a new one.", address),
		Buttons: []Button{cancelButton},
	}
}

func PaymentAddress(address, amount string) Message {
	return Message{
		Text: fmt.Sprintf("⚡️Please make your payment to this address:\n<code>%s</code>\n\nChecking your wallet address for a deposit of %s AMB.\n\nI'll notify you once the payment is confirmed.",
			address, amount),
		Buttons: []Button{cancelButton},
	}
}

func DepositCancelled() Message {
	return Message{
		Text:    "⚠️Deposit process canceled. Use the button below to start Payment.",
		Buttons: []Button{startDepositButton},
	}
}

func DepositConfirmed(balance string) Message {
	return Message{Text: fmt.Sprintf("✅Deposit confirmed! Received %s AMB. Transferring funds to the admin wallet...", balance)}
}

func SweepSucceeded(admin, txHash string) Message {
	return Message{
		Text: fmt.Sprintf("✅Transfer to admin wallet (<code>%s</code>) was successful! Thank you for your deposit.\nTxHash: <code>%s</code>",
			admin, txHash),
		Buttons: []Button{startDepositButton},
	}
}

func SweepFailed() Message {
	return Message{Text: "‼️Error during transfer to admin wallet. ♻️Please contact support."}
}

func DepositExpired(window string) Message {
	return Message{
		Text:    fmt.Sprintf("🔁Monitoring period expired. No deposit was detected in the last %s.", window),
		Buttons: []Button{startDepositButton},
	}
}

func MonitoringFailed() Message {
	return Message{
		Text:    "❌An error occurred while monitoring your wallet. Please try again.",
		Buttons: []Button{startDepositButton},
	}
}

func StorageFailed() Message {
	return Message{
		Text:    "⚠️We could not record your request. Please try again.",
		Buttons: []Button{startDepositButton},
	}
}

// ==================== Bulk withdrawal ====================

func Balance(amount string) Message {
	return Message{Text: fmt.Sprintf("🔴Your wallet balance is: %s AMB", amount)}
}

func BalanceFailed() Message {
	return Message{Text: "❌Error checking wallet balance. Please try again."}
}

func AskBulkWallets(address string) Message {
	return Message{Text: fmt.Sprintf("🌐Your wallet address is:\n<code>%s</code>\n\n⚠️Please enter the wallet addresses you'd like to transfer AMB to, separated by commas (e.g., address1, address2, address3):",
		address)}
}

// InvalidBulkWallets echoes user input, so entries are escaped for HTML parse mode
func InvalidBulkWallets(invalid []string) Message {
	escaped := make([]string, len(invalid))
	for i, s := range invalid {
		escaped[i] = html.EscapeString(s)
	}
	return Message{Text: fmt.Sprintf("❌Invalid AMB address(es): %s. Please provide valid wallet addresses.", strings.Join(escaped, ", "))}
}

func BulkWalletsSet(wallets []string) Message {
	return Message{Text: fmt.Sprintf("🚀Bulk wallet addresses set: %s\n\n👇Now, please enter the amount of AMB you want to transfer to each wallet.",
		strings.Join(wallets, ", "))}
}

func InvalidTransferAmount() Message {
	return Message{Text: "❌Invalid transfer amount. Please enter a valid positive number."}
}

func InsufficientFunds(total, balance string) Message {
	return Message{Text: fmt.Sprintf("❌You don't have enough funds to transfer %s AMB. Your balance is %s AMB.", total, balance)}
}

func Transferring(total string) Message {
	return Message{Text: fmt.Sprintf("🚀Transferring %s AMB to bulk wallets...", total)}
}

func TransferSucceeded(amount, destination, txHash string) Message {
	return Message{Text: fmt.Sprintf("✅Successfully transferred %s AMB to <code>%s</code>.\nTxHash: <code>%s</code>",
		amount, destination, txHash)}
}

func TransferFailed(destination, txHash string) Message {
	if txHash != "" {
		return Message{Text: fmt.Sprintf("❌Failed to transfer to %s.\nTxHash: <code>%s</code>", destination, txHash)}
	}
	return Message{Text: fmt.Sprintf("❌Failed to transfer to %s.", destination)}
}

func TransferError() Message {
	return Message{Text: "⚠️Error during transfer. Please try again."}
}

func WithdrawalComplete() Message {
	return Message{
		Text:    "✅Withdrawal complete. Thank you for using 👾AirPay bot!",
		Buttons: []Button{checkBalanceButton, startTransferButton},
	}
}

func UnknownInput() Message {
	return Message{
		Text:    "Use the buttons below to start a deposit or a bulk transfer.",
		Buttons: []Button{startDepositButton, checkBalanceButton, startTransferButton},
	}
}

func InternalError() Message {
	return Message{Text: "⚠️Something went wrong. Please try again."}
}
